package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"walink/internal/domain"
	"walink/internal/handlers"
	"walink/internal/supervisor"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID    = "9a8b7c6d-5e4f-4a3b-9c2d-111111111111"
	strangerID = "9a8b7c6d-5e4f-4a3b-9c2d-222222222222"
)

type memoryRepo struct {
	mu      sync.Mutex
	devices map[domain.DeviceID]*domain.Device
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{devices: make(map[domain.DeviceID]*domain.Device)}
}

func (r *memoryRepo) Create(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[device.ID] = device
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id domain.DeviceID) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[id]
	if !ok {
		return nil, domain.ErrDeviceNotFound(id)
	}
	copied := *device
	return &copied, nil
}

func (r *memoryRepo) GetByUser(_ context.Context, userID domain.UserID) ([]*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Device
	for _, device := range r.devices {
		if device.UserID == userID {
			copied := *device
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetByStatus(_ context.Context, _ domain.DeviceStatus) ([]*domain.Device, error) {
	return nil, nil
}

func (r *memoryRepo) CountByUser(_ context.Context, userID domain.UserID) (int, error) {
	devices, _ := r.GetByUser(context.Background(), userID)
	return len(devices), nil
}

func (r *memoryRepo) Delete(_ context.Context, id domain.DeviceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return domain.ErrDeviceNotFound(id)
	}
	delete(r.devices, id)
	return nil
}

func (r *memoryRepo) SetStatus(_ context.Context, id domain.DeviceID, status domain.DeviceStatus, phone, jid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if device, ok := r.devices[id]; ok {
		device.Status = status
		if phone != "" {
			device.Phone = phone
		}
		if jid != "" {
			device.JID = jid
		}
	}
	return nil
}

func (r *memoryRepo) TouchLastSeen(_ context.Context, _ domain.DeviceID) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(_ domain.UserID, _ domain.Event) {}

type testServer struct {
	mux  *chi.Mux
	repo *memoryRepo
}

func newTestServer(t *testing.T, maxDevices int) *testServer {
	t.Helper()

	repo := newMemoryRepo()
	sup := supervisor.New(nil, nil, repo, noopPublisher{}, nil, supervisor.DefaultConfig())

	deviceHandler := handlers.NewDeviceHandler(repo, sup, nil, maxDevices)
	messageHandler := handlers.NewMessageHandler(repo, sup)

	mux := chi.NewRouter()
	mux.Route("/devices", func(r chi.Router) {
		r.Post("/", deviceHandler.CreateDevice)
		r.Get("/", deviceHandler.ListDevices)
		r.Route("/{deviceID}", func(r chi.Router) {
			r.Get("/", deviceHandler.GetDevice)
			r.Get("/qr", deviceHandler.GetQRCode)
			r.Get("/status", deviceHandler.GetStatus)
			r.Post("/messages/text", messageHandler.SendTextMessage)
		})
	})

	return &testServer{mux: mux, repo: repo}
}

func (ts *testServer) do(method, path, userID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seedDevice(t *testing.T, userID, name string) *domain.Device {
	t.Helper()
	uid, err := domain.ParseUserID(userID)
	require.NoError(t, err)
	device := domain.NewDevice(uid, name)
	require.NoError(t, ts.repo.Create(context.Background(), device))
	return device
}

func TestCreateDevice(t *testing.T) {
	t.Run("registers a device", func(t *testing.T) {
		ts := newTestServer(t, 5)

		rec := ts.do(http.MethodPost, "/devices", ownerID, `{"name":"office phone"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp handlers.DeviceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "office phone", resp.Name)
		assert.Equal(t, "offline", resp.Status)
		assert.False(t, resp.Online)
	})

	t.Run("requires a user identity", func(t *testing.T) {
		ts := newTestServer(t, 5)

		rec := ts.do(http.MethodPost, "/devices", "", `{"name":"office phone"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		ts := newTestServer(t, 5)

		rec := ts.do(http.MethodPost, "/devices", ownerID, `{"name":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("enforces the per-user device limit", func(t *testing.T) {
		ts := newTestServer(t, 1)
		ts.seedDevice(t, ownerID, "first")

		rec := ts.do(http.MethodPost, "/devices", ownerID, `{"name":"second"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)

		// Another user's devices do not count against the limit.
		rec = ts.do(http.MethodPost, "/devices", strangerID, `{"name":"mine"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestListDevices(t *testing.T) {
	t.Run("returns only the caller's devices", func(t *testing.T) {
		ts := newTestServer(t, 5)
		ts.seedDevice(t, ownerID, "office")
		ts.seedDevice(t, ownerID, "warehouse")
		ts.seedDevice(t, strangerID, "other tenant")

		rec := ts.do(http.MethodGet, "/devices", ownerID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Devices []handlers.DeviceResponse `json:"devices"`
			Total   int                       `json:"total"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
	})
}

func TestGetDevice(t *testing.T) {
	t.Run("returns the device", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(http.MethodGet, "/devices/"+device.ID.String(), ownerID, "")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown device is 404", func(t *testing.T) {
		ts := newTestServer(t, 5)

		rec := ts.do(http.MethodGet, "/devices/"+domain.NewDeviceID().String(), ownerID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("another tenant's device reads as 404", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, strangerID, "not yours")

		rec := ts.do(http.MethodGet, "/devices/"+device.ID.String(), ownerID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed ID is 400", func(t *testing.T) {
		ts := newTestServer(t, 5)

		rec := ts.do(http.MethodGet, "/devices/not-a-uuid", ownerID, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetQRCode(t *testing.T) {
	t.Run("no pending challenge is 404", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(http.MethodGet, "/devices/"+device.ID.String()+"/qr", ownerID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSendTextMessage(t *testing.T) {
	t.Run("offline device is 409", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(
			http.MethodPost,
			"/devices/"+device.ID.String()+"/messages/text",
			ownerID,
			`{"phone":"5511999998888","message":"hello"}`,
		)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validates the payload", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(
			http.MethodPost,
			"/devices/"+device.ID.String()+"/messages/text",
			ownerID,
			`{"phone":"5511999998888","message":""}`,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects phones shorter than ten digits", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(
			http.MethodPost,
			"/devices/"+device.ID.String()+"/messages/text",
			ownerID,
			`{"phone":"551199888","message":"hello"}`,
		)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("another tenant's device reads as 404", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, strangerID, "not yours")

		rec := ts.do(
			http.MethodPost,
			"/devices/"+device.ID.String()+"/messages/text",
			ownerID,
			`{"phone":"5511999998888","message":"hello"}`,
		)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("reports persisted status and live flag", func(t *testing.T) {
		ts := newTestServer(t, 5)
		device := ts.seedDevice(t, ownerID, "office")

		rec := ts.do(http.MethodGet, "/devices/"+device.ID.String()+"/status", ownerID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "offline", resp["status"])
		assert.Equal(t, false, resp["online"])
	})
}
