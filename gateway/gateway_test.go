package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/example/coursecheckout/pkg/checkout"
	"github.com/example/coursecheckout/pkg/config"
	checkoutgrpc "github.com/example/coursecheckout/pkg/grpc"
	"github.com/example/coursecheckout/pkg/models"
	"github.com/example/coursecheckout/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type stubFiles map[string]string

func (f stubFiles) OpenProof(_ context.Context, name string) (io.ReadCloser, string, error) {
	data, ok := f[name]
	if !ok {
		return nil, "", repository.ErrFileNotFound
	}
	return io.NopCloser(strings.NewReader(data)), "image/png", nil
}

type failingStore struct{}

func (failingStore) CreateOrder(context.Context, checkout.OrderInput) (checkout.OrderResult, error) {
	return checkout.OrderResult{}, assert.AnError
}

func (failingStore) SubmitPaymentProof(context.Context, checkout.ProofInput) (checkout.ProofResult, error) {
	return checkout.ProofResult{}, assert.AnError
}

func (failingStore) Order(context.Context, string) (*models.Order, error) {
	return nil, assert.AnError
}

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{MaxUploadMB: 1},
		Catalog: config.CatalogConfig{Courses: config.DefaultCourses},
	}
}

func newTestGateway(t *testing.T, store checkout.Store, files ProofFiles) http.Handler {
	g := NewGateway(testConfig(), zaptest.NewLogger(t), store, files)
	g.SetupRoutes()
	return g.Handler()
}

func newLocalStore(t *testing.T) checkout.Store {
	return checkout.NewLocalStore(repository.NewMemoryRepository(), zaptest.NewLogger(t))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type proofFile struct {
	name        string
	contentType string
	data        []byte
}

func doProof(t *testing.T, h http.Handler, fields map[string]string, file *proofFile) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+file.name+`"`)
		header.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-proofs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGateway_Health(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestGateway_RequestIDIsEchoed(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))
}

func TestGateway_ListCourses(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doJSON(t, h, http.MethodGet, "/api/v1/courses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"courses":[{"id":"top-100-ai-tools","title":"Top 100 AI Tools for Creators","price":499}]}`,
		w.Body.String())
}

func TestGateway_CheckoutFlow(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{
		"name":     "  Jane Doe ",
		"email":    "Jane@Example.com",
		"phone":    "+1234567890 ",
		"courseId": "top-100-ai-tools",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)["id"].(string)
	require.Len(t, id, 12)

	w = doJSON(t, h, http.MethodGet, "/api/v1/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order := decode(t, w)
	assert.Equal(t, "Jane Doe", order["name"])
	assert.Equal(t, "jane@example.com", order["email"])
	assert.Equal(t, "+1234567890", order["phone"])
	assert.Equal(t, "Top 100 AI Tools for Creators", order["courseTitle"])
	assert.Equal(t, 499.0, order["price"])
	assert.Equal(t, "pending", order["status"])

	w = doProof(t, h, map[string]string{"orderId": id, "txnId": "TXN123"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"orderId":"`+id+`","proofUrl":null}`, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/v1/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order = decode(t, w)
	assert.Equal(t, "payment_submitted", order["status"])
	assert.NotEmpty(t, order["paymentSubmittedAt"])
}

func TestGateway_CreateOrderDefaultsCourse(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{
		"name":  "Jane Doe",
		"email": "jane@example.com",
		"phone": "(555) 123-4567",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)["id"].(string)

	w = doJSON(t, h, http.MethodGet, "/api/v1/orders/"+id, nil)
	assert.Equal(t, "top-100-ai-tools", decode(t, w)["courseId"])
}

func TestGateway_CreateOrderValidation(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	valid := func() map[string]string {
		return map[string]string{
			"name":     "Jane Doe",
			"email":    "jane@example.com",
			"phone":    "+1234567890",
			"courseId": "top-100-ai-tools",
		}
	}

	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{"blank name", func(m map[string]string) { m["name"] = "   " }, "name is required"},
		{"bad email", func(m map[string]string) { m["email"] = "jane@" }, "invalid email"},
		{"email without dot domain", func(m map[string]string) { m["email"] = "jane@example" }, "invalid email"},
		{"email with surrounding space", func(m map[string]string) { m["email"] = " jane@example.com" }, "invalid email"},
		{"missing email", func(m map[string]string) { delete(m, "email") }, "invalid email"},
		{"short phone", func(m map[string]string) { m["phone"] = "12345" }, "invalid phone"},
		{"letters in phone", func(m map[string]string) { m["phone"] = "+12345abc90" }, "invalid phone"},
		{"unknown course", func(m map[string]string) { m["courseId"] = "nope" }, "unknown course"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			w := doJSON(t, h, http.MethodPost, "/api/v1/orders", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["error"])
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGateway_OrderNotFound(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doJSON(t, h, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_SubmitProofWithFile(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doProof(t, h, map[string]string{"orderId": "abc123"}, &proofFile{
		name:        "receipt.txt",
		contentType: "text/plain",
		data:        []byte("paid"),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, "abc123", out["orderId"])
	assert.Equal(t, "data:text/plain;base64,cGFpZA==", out["proofUrl"])
}

func TestGateway_SubmitProofValidation(t *testing.T) {
	h := newTestGateway(t, newLocalStore(t), nil)

	w := doProof(t, h, map[string]string{"txnId": "TXN123"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "orderId is required", decode(t, w)["error"])

	w = doProof(t, h, map[string]string{"orderId": "abc123", "txnId": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "txnId or file is required", decode(t, w)["error"])

	w = doJSON(t, h, http.MethodPost, "/api/v1/payment-proofs", map[string]string{"orderId": "abc123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_StoreFailures(t *testing.T) {
	h := newTestGateway(t, failingStore{}, nil)

	w := doJSON(t, h, http.MethodPost, "/api/v1/orders", map[string]string{
		"name":  "Jane Doe",
		"email": "jane@example.com",
		"phone": "+1234567890",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"could not save order"}`, w.Body.String())

	w = doProof(t, h, map[string]string{"orderId": "abc123", "txnId": "TXN123"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"could not submit payment proof"}`, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/v1/orders/abc123", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGateway_DownloadProof(t *testing.T) {
	files := stubFiles{"payment_proofs/abc-1-receipt scan.png": "png-bytes"}
	h := newTestGateway(t, newLocalStore(t), files)

	w := doJSON(t, h, http.MethodGet, "/files/payment_proofs/abc-1-receipt%20scan.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/files/payment_proofs/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	local := newTestGateway(t, newLocalStore(t), nil)
	w = doJSON(t, local, http.MethodGet, "/files/payment_proofs/abc-1-receipt%20scan.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_DownloadProofThroughCheckoutService(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	files := stubFiles{"payment_proofs/abc-1-receipt.png": "png-bytes"}
	checkoutgrpc.NewCheckoutServer(testConfig(), newLocalStore(t), files, zaptest.NewLogger(t)).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := checkoutgrpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	h := newTestGateway(t, client, client)

	w := doJSON(t, h, http.MethodGet, "/files/payment_proofs/abc-1-receipt.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/files/payment_proofs/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
