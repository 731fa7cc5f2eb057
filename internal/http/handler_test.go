package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FlowBackend/internal/flow"
	"FlowBackend/internal/models"
	"FlowBackend/internal/services"
	"FlowBackend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]*models.Order{}}
}

func (m *memStore) CreateOrder(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.FlowToken]; ok {
		return store.ErrDuplicateOrder
	}
	cp := *order
	m.orders[order.FlowToken] = &cp
	return nil
}

func (m *memStore) GetByFlowToken(ctx context.Context, flowToken string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[flowToken]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) MarkPaidIfUnpaid(ctx context.Context, flowToken, downloadToken string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[flowToken]
	if !ok || o.Status == models.OrderPaid || o.DownloadToken != nil {
		return false, nil
	}
	now := time.Now().UTC()
	o.Status = models.OrderPaid
	o.DownloadToken = &downloadToken
	o.PaidAt = &now
	return true, nil
}

func (m *memStore) GetByDownloadToken(ctx context.Context, downloadToken string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.DownloadToken != nil && *o.DownloadToken == downloadToken {
			cp := *o
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingNotifier) Enqueue(to, subject, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, to)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// fakeGatewayServer speaks just enough of the gateway protocol for the
// handlers: payment creation returns a fixed token, status reports whatever
// the test sets.
type fakeGatewayServer struct {
	mu     sync.Mutex
	token  string
	url    string
	status int
}

func (f *fakeGatewayServer) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeGatewayServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/create", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"token": f.token, "url": f.url + "/web/pay"})
	})
	mux.HandleFunc("/payment/getStatus", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"status": f.status})
	})
	return mux
}

type env struct {
	api      *httptest.Server
	store    *memStore
	notifier *recordingNotifier
	gateway  *fakeGatewayServer
}

func newEnv(t *testing.T) *env {
	t.Helper()

	gw := &fakeGatewayServer{token: "tok-e2e", status: flow.StatusPending}
	gwSrv := httptest.NewServer(gw.handler())
	gw.url = gwSrv.URL
	t.Cleanup(gwSrv.Close)

	st := newMemStore()
	n := &recordingNotifier{}

	dir := t.TempDir()
	product := filepath.Join(dir, "pack.zip")
	require.NoError(t, os.WriteFile(product, []byte("zip-bytes"), 0o644))

	checkout := &services.CheckoutService{
		Store:           st,
		Gateway:         flow.NewClient(gwSrv.URL, "api-key", "secret"),
		Notifier:        n,
		PublicBaseURL:   "https://shop.example",
		DownloadBaseURL: "https://shop.example",
		ProductFile:     product,
		ProductSubject:  "Pack IA para PYMES 2026",
		ProductCurrency: "CLP",
		ProductAmount:   350,
	}

	h := NewHandler(checkout, gwSrv.URL, "https://shop.example", "https://shop.example")
	apiSrv := httptest.NewServer(NewServer(h).Router)
	t.Cleanup(apiSrv.Close)

	return &env{api: apiSrv, store: st, notifier: n, gateway: gw}
}

func (e *env) postJSON(t *testing.T, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.api.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *env) postForm(t *testing.T, path string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.PostForm(e.api.URL+path, form)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.api.URL + "/health")
	require.NoError(t, err)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "flow-backend", body["service"])
	assert.Equal(t, "https://shop.example", body["public_base_url"])
	assert.NotEmpty(t, body["flow_api_url"])
	assert.NotEmpty(t, body["download_base_url"])
}

func TestCreatePayRejectsInvalidEmail(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.postJSON(t, "/pay/create", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.postJSON(t, "/pay/create", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutConfirmationDownloadFlow(t *testing.T) {
	e := newEnv(t)

	// 1. Checkout.
	resp, body := e.postJSON(t, "/pay/create", `{"email":"buyer@example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	token, _ := body["token"].(string)
	require.Equal(t, "tok-e2e", token)
	checkoutURL, _ := body["checkoutUrl"].(string)
	assert.True(t, strings.HasSuffix(checkoutURL, "?token=tok-e2e"), checkoutURL)

	// Order persisted but not yet paid: download must be forbidden later,
	// but first there is no download token at all.
	order, err := e.store.GetByFlowToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCreated, order.Status)

	// 2. Gateway settles, callback arrives.
	e.gateway.setStatus(flow.StatusPaid)
	resp, body = e.postForm(t, "/flow/confirmation", url.Values{"token": {token}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Nil(t, body["warn"])

	order, err = e.store.GetByFlowToken(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, order.DownloadToken)
	downloadToken := *order.DownloadToken
	assert.Len(t, downloadToken, 32)
	assert.Equal(t, 1, e.notifier.count())

	// 3. Redelivered callback: no new token, no second mail.
	resp, body = e.postForm(t, "/flow/confirmation", url.Values{"token": {token}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	order, err = e.store.GetByFlowToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, downloadToken, *order.DownloadToken)
	assert.Equal(t, 1, e.notifier.count())

	// 4. Download.
	dlResp, err := http.Get(e.api.URL + "/download/" + downloadToken)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	assert.Equal(t, "application/zip", dlResp.Header.Get("Content-Type"))
	assert.Contains(t, dlResp.Header.Get("Content-Disposition"), "pack.zip")
	data, err := io.ReadAll(dlResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))
}

func TestConfirmationMissingToken(t *testing.T) {
	e := newEnv(t)

	resp, body := e.postForm(t, "/flow/confirmation", url.Values{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "missing token", body["error"])
}

func TestConfirmationUnknownOrderStillSucceeds(t *testing.T) {
	e := newEnv(t)
	e.gateway.setStatus(flow.StatusPaid)

	resp, body := e.postForm(t, "/flow/confirmation", url.Values{"token": {"tok-nobody"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "order_not_found", body["warn"])
	assert.Equal(t, 0, e.notifier.count())
}

func TestConfirmationPendingDoesNotMarkPaid(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.postJSON(t, "/pay/create", `{"email":"buyer@example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	e.gateway.setStatus(flow.StatusPending)
	resp, body := e.postForm(t, "/flow/confirmation", url.Values{"token": {"tok-e2e"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	order, err := e.store.GetByFlowToken(context.Background(), "tok-e2e")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCreated, order.Status)
	assert.Nil(t, order.DownloadToken)
}

func TestReturnStatusMessages(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		status int
		ok     bool
	}{
		{flow.StatusPaid, true},
		{flow.StatusPending, true},
		{flow.StatusRejected, false},
	}
	for _, tc := range cases {
		e.gateway.setStatus(tc.status)
		resp, body := e.postForm(t, "/flow/return", url.Values{"token": {"tok-e2e"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tc.ok, body["ok"], "status %d", tc.status)
		assert.NotEmpty(t, body["message"])
	}
}

func TestDownloadUnknownToken(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.api.URL + "/download/" + strings.Repeat("f", 32))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadUnpaidOrder(t *testing.T) {
	e := newEnv(t)

	token := "dl-unpaid"
	now := time.Now().UTC()
	require.NoError(t, e.store.CreateOrder(context.Background(), &models.Order{
		ID: "o-1", Email: "a@example.com", CommerceOrder: "co-1",
		FlowToken: "tok-1", Status: models.OrderCreated,
		DownloadToken: &token, CreatedAt: now,
	}))

	resp, err := http.Get(e.api.URL + "/download/" + token)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConcurrentConfirmations(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.postJSON(t, "/pay/create", `{"email":"buyer@example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.gateway.setStatus(flow.StatusPaid)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := http.PostForm(e.api.URL+"/flow/confirmation", url.Values{"token": {"tok-e2e"}})
			if assert.NoError(t, err) {
				_, _ = io.Copy(io.Discard, r.Body)
				r.Body.Close()
				assert.Equal(t, http.StatusOK, r.StatusCode)
			}
		}()
	}
	wg.Wait()

	order, err := e.store.GetByFlowToken(context.Background(), "tok-e2e")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	assert.Equal(t, 1, e.notifier.count(), "one notification despite %d concurrent callbacks", workers)
}
