package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"hiberry/internal/auth"
	"hiberry/internal/events"
	"hiberry/internal/geo"
	"hiberry/internal/manifest"
	"hiberry/internal/metrics"
	"hiberry/internal/model"
	"hiberry/internal/orders"
	"hiberry/internal/planner"
	"hiberry/internal/store"
)

const monday = "2024-01-08"

type testAPI struct {
	srv    *Server
	h      http.Handler
	store  *store.Memory
	broker *events.Memory
}

func newTestAPI(t *testing.T, mode string) testAPI {
	t.Helper()
	st := store.NewMemory()
	br := events.NewMemory()
	// the static geocoder answers with a north-west point
	svc := orders.NewService(st, store.NewMemoryLocker(), geo.NewStatic(), br, planner.DefaultRules(), nil)
	s := NewServer(svc, auth.NewVerifier(mode, "s3cret"), br, st, nil)
	return testAPI{srv: s, h: s.Routes(), store: st, broker: br}
}

func (a testAPI) do(t *testing.T, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	return rr
}

func orderBody(date string, window model.DeliveryWindow) map[string]any {
	return map[string]any{
		"client_name":      "Ana Torres",
		"delivery_date":    date,
		"delivery_time":    string(window),
		"delivery_address": "Av. Vallarta 100",
		"phone_number":     "3312345678",
		"payment_method":   "cash",
		"total_amount":     180,
		"cart_items":       []map[string]any{{"sku": "nieve-1l", "name": "Nieve 1L", "quantity": 2, "price": 90}},
	}
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestHealthReady(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"version"`)

	rr = a.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyReportsStorageDown(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	a.srv.Store = downPinger{}
	rr := a.do(t, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RegisterDefault()
	a := newTestAPI(t, auth.ModeDev)
	a.do(t, http.MethodGet, "/healthz", nil, nil)
	rr := a.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestCreateOrder(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), map[string]string{"X-User": "maria", "X-Role": "operator"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp createResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, model.Date(monday), resp.DeliveryDate)
	assert.Equal(t, model.StatusCreated, resp.Status)
	assert.Equal(t, 1, resp.AssignedDriver)
	require.NotNil(t, resp.Latitude)
	assert.InDelta(t, geo.LocalPoint.Latitude, *resp.Latitude, 1e-9)
	assert.Empty(t, resp.Errors)

	stored, err := a.store.Get(context.Background(), monday, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria", stored.CreatedBy)
}

func TestCreateRejectedReturnsConflict(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	// north-west is not served on Monday afternoons
	rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Afternoon), nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	p := decodeProblem(t, rr)
	assert.Equal(t, orders.CodeNoDriverAvailable, p.Code)
	order, ok := p.Order.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(model.StatusError), order["status"])
	assert.EqualValues(t, 0, order["assigned_driver"])

	list, err := a.store.FetchByDate(context.Background(), monday)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateBadInput(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)

	rr := a.do(t, http.MethodPost, "/v1/orders", "{", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body := orderBody("08/01/2024", model.Morning)
	rr = a.do(t, http.MethodPost, "/v1/orders", body, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeProblem(t, rr).Detail, "delivery_date")

	body = orderBody(monday, model.Morning)
	body["delivery_time"] = "9 AM - 1 PM"
	rr = a.do(t, http.MethodPost, "/v1/orders", body, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDriverCannotWriteOrders(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), map[string]string{"X-Role": "driver"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, http.MethodGet, "/v1/orders?date="+monday, nil, map[string]string{"X-Role": "driver"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestListUpdateDelete(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created createResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = a.do(t, http.MethodGet, "/v1/orders?date="+monday, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items []model.Order `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, created.ID, list.Items[0].ID)

	upd := orderBody(monday, model.Morning)
	upd["id"] = created.ID
	upd["original_date"] = monday
	upd["driver"] = 2
	upd["original_driver"] = 1
	rr = a.do(t, http.MethodPut, "/v1/orders", upd, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated model.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, 2, updated.Driver)

	rr = a.do(t, http.MethodDelete, "/v1/orders?delivery_date="+monday+"&id="+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = a.do(t, http.MethodDelete, "/v1/orders?delivery_date="+monday+"&id="+created.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, orders.CodeOrderNotFound, decodeProblem(t, rr).Code)

	rr = a.do(t, http.MethodPut, "/v1/orders", upd, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListRequiresDate(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodGet, "/v1/orders", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrdersMethodNotAllowed(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodPatch, "/v1/orders", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestScheduleAndManifest(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	for i := 0; i < 2; i++ {
		rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), nil)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	req := model.ScheduleRequest{Date: monday, AvailableDrivers: []int{1, 2}}

	rr := a.do(t, http.MethodPost, "/v1/schedule", req, map[string]string{"X-Role": "operator"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = a.do(t, http.MethodPost, "/v1/schedule", req, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out struct {
		Message string               `json:"message"`
		Result  model.ScheduleResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, "scheduling completed", out.Message)
	assert.Equal(t, 2, out.Result.Scheduled)

	list, err := a.store.FetchByDate(context.Background(), monday)
	require.NoError(t, err)
	for _, o := range list {
		assert.Equal(t, model.StatusProgrammed, o.Status)
		assert.NotNil(t, o.Sequence)
	}

	rr = a.do(t, http.MethodGet, "/v1/schedule/manifest?date="+monday, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, manifest.ContentType, rr.Header().Get("Content-Type"))
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Contains(t, f.GetSheetList(), manifest.SheetName(1))
}

func TestScheduleValidation(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodPost, "/v1/schedule", model.ScheduleRequest{Date: monday, AvailableDrivers: []int{1, 1}}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	p := decodeProblem(t, rr)
	assert.Nil(t, p.Result)
}

func TestProblemForPartialSchedule(t *testing.T) {
	down := &store.Error{StatusCode: http.StatusServiceUnavailable, Message: "bulk update", Err: errors.New("timeout")}
	err := errors.Join(&planner.PartitionError{Date: monday, Driver: 2, Window: model.Afternoon, Err: down})
	p := problemFor(err)
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
	assert.Equal(t, "bulk update", p.Detail)

	p = problemFor(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, p.Status)
}

func TestHMACAuth(t *testing.T) {
	a := newTestAPI(t, auth.ModeHMAC)

	rr := a.do(t, http.MethodGet, "/v1/orders?date="+monday, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "maria",
		"role": "operator",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	rr = a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodGet, "/v1/orders?date="+monday, nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEventsWebSocket(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	ts := httptest.NewServer(a.h)
	defer ts.Close()

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws?date=" + monday
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	rr := a.do(t, http.MethodPost, "/v1/orders", orderBody(monday, model.Morning), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt events.Event
	require.NoError(t, c.ReadJSON(&evt))
	assert.Equal(t, events.OrderCreated, evt.Type)
	assert.Equal(t, monday, evt.Date)
}

func TestEventsWebSocketRequiresDate(t *testing.T) {
	a := newTestAPI(t, auth.ModeDev)
	rr := a.do(t, http.MethodGet, "/v1/events/ws", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
