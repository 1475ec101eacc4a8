package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/pagesync/internal/document"
	"github.com/gogotex/pagesync/internal/document/service"
	"github.com/gogotex/pagesync/internal/hub"
	"github.com/gogotex/pagesync/internal/identity"
	"github.com/gogotex/pagesync/internal/presence"
	"github.com/gogotex/pagesync/internal/protocol"
	"github.com/gogotex/pagesync/internal/versions"
	"github.com/stretchr/testify/require"
)

type env struct {
	g   *gin.Engine
	svc *service.Store
	vm  *versions.Manager
	reg *hub.Registry
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := service.NewMemoryStore()
	vm := versions.NewManager(svc, nil)
	reg := hub.NewRegistry(svc, vm, nil, nil, hub.Options{})
	t.Cleanup(reg.Shutdown)
	g := gin.New()
	RegisterDocumentRoutes(g, svc, reg, vm)
	return &env{g: g, svc: svc, vm: vm, reg: reg}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	e.g.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestDocumentHandler_CRUD(t *testing.T) {
	e := setup(t)

	// create
	w := e.do(http.MethodPost, "/api/documents", `{"title":"notes"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[document.Document](t, w)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "notes", created.Title)
	require.Equal(t, []string{""}, created.Pages)

	// create without a body
	w = e.do(http.MethodPost, "/api/documents", "")
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, document.DefaultTitle, decode[document.Document](t, w).Title)

	// get
	w = e.do(http.MethodGet, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	// update
	w = e.do(http.MethodPut, "/api/documents/"+created.ID, `{"title":"renamed","pages":["a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[document.Document](t, w)
	require.Equal(t, "renamed", updated.Title)
	require.Equal(t, []string{"a", "b"}, updated.Pages)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	// list
	w = e.do(http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]map[string]any](t, w)
	require.Len(t, list, 2)
	require.Equal(t, created.ID, list[0]["id"])
	require.EqualValues(t, 2, list[0]["page_count"])

	// delete
	w = e.do(http.MethodDelete, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodDelete, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_BadInput(t *testing.T) {
	e := setup(t)
	d, err := e.svc.Create(context.Background(), "")
	require.NoError(t, err)

	w := e.do(http.MethodPost, "/api/documents", `{"title":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPut, "/api/documents/"+d.ID, `{"pages":"nope"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(http.MethodPut, "/api/documents/missing", `{"title":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_VersionsAndRestore(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	d, err := e.svc.Create(ctx, "")
	require.NoError(t, err)
	_, err = e.svc.ApplyContentUpdate(ctx, d.ID, []string{"snapshot"})
	require.NoError(t, err)
	v, err := e.vm.Create(ctx, d.ID, "Ann", "first")
	require.NoError(t, err)
	_, err = e.svc.ApplyContentUpdate(ctx, d.ID, []string{"edited"})
	require.NoError(t, err)

	w := e.do(http.MethodGet, "/api/documents/"+d.ID+"/versions", "")
	require.Equal(t, http.StatusOK, w.Code)
	vs := decode[[]document.Version](t, w)
	require.Len(t, vs, 1)
	require.Equal(t, "first", vs[0].Summary)

	w = e.do(http.MethodPost, "/api/documents/"+d.ID+"/versions/"+v.ID+"/restore", "")
	require.Equal(t, http.StatusOK, w.Code)
	restored := decode[document.Document](t, w)
	require.Equal(t, []string{"snapshot"}, restored.Pages)
	require.Len(t, restored.Versions, 1)

	w = e.do(http.MethodPost, "/api/documents/"+d.ID+"/versions/v42/restore", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(http.MethodGet, "/api/documents/missing/versions", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	_, err = e.svc.SetLocked(ctx, d.ID, true)
	require.NoError(t, err)
	w = e.do(http.MethodPost, "/api/documents/"+d.ID+"/versions/"+v.ID+"/restore", "")
	require.Equal(t, http.StatusLocked, w.Code)
	w = e.do(http.MethodPut, "/api/documents/"+d.ID, `{"pages":["x"]}`)
	require.Equal(t, http.StatusLocked, w.Code)
}

func TestDocumentHandler_LiveSessions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	d, err := e.svc.Create(ctx, "")
	require.NoError(t, err)

	s := hub.NewSession(identity.Identity{UserID: "A", UserName: "Ann"}, hub.SessionOptions{})
	_, err = e.reg.Join(ctx, d.ID, s)
	require.NoError(t, err)
	<-s.Send() // document_state
	<-s.Send() // user_list

	w := e.do(http.MethodGet, "/api/documents/"+d.ID+"/users", "")
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[[]presence.Session](t, w)
	require.Len(t, users, 1)
	require.Equal(t, "Ann", users[0].UserName)

	// a REST edit reaches the connected session with no origin user
	w = e.do(http.MethodPut, "/api/documents/"+d.ID, `{"pages":["from rest"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var msg protocol.Envelope
	require.NoError(t, json.Unmarshal(<-s.Send(), &msg))
	require.Equal(t, protocol.TypeContentUpdate, msg.Type)
	require.Empty(t, msg.UserID)
	require.Equal(t, []string{"from rest"}, msg.Pages)

	w = e.do(http.MethodGet, "/api/documents/missing/users", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodDelete, "/api/documents/"+d.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	<-s.Done()
}
