package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/zklogin-recovery/internal/model"
	"github.com/dtroode/zklogin-recovery/internal/testutil"
)

type mockDerivation struct {
	mock.Mock
}

func (m *mockDerivation) Nonce(ctx context.Context, pubKeyHex, rndHex string) (string, error) {
	args := m.Called(ctx, pubKeyHex, rndHex)
	return args.String(0), args.Error(1)
}

func (m *mockDerivation) Salt(ctx context.Context, iss, aud, sub string) (model.Salt, error) {
	args := m.Called(ctx, iss, aud, sub)
	return args.Get(0).(model.Salt), args.Error(1)
}

func (m *mockDerivation) ZkAddr(ctx context.Context, iss, aud, sub string, salt model.Salt) (model.ZkAddress, error) {
	args := m.Called(ctx, iss, aud, sub, salt)
	return args.Get(0).(model.ZkAddress), args.Error(1)
}

func do(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestDerivation_Nonce(t *testing.T) {
	svc := &mockDerivation{}
	h := NewDerivation(svc, testutil.MakeNoopLogger())

	svc.On("Nonce", mock.Anything, "0x01", "0x02").Return("nonce-value", nil).Once()

	rec := do(h.Nonce, `{"eph_pub_key_hex":"0x01","jwt_rnd_hex":"0x02"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nonce-value", decodeBody(t, rec)["nonce"])
	svc.AssertExpectations(t)
}

func TestDerivation_Salt(t *testing.T) {
	var salt model.Salt
	salt[0] = 0xab
	salt[30] = 0xcd

	tests := []struct {
		name       string
		body       string
		setup      func(*mockDerivation)
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name: "ok",
			body: `{"iss":"i","aud":"a","sub":"s"}`,
			setup: func(m *mockDerivation) {
				m.On("Salt", mock.Anything, "i", "a", "s").Return(salt, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantKey:    "salt",
			wantValue:  salt.Hex(),
		},
		{
			name: "validation error",
			body: `{"iss":"","aud":"a","sub":"s"}`,
			setup: func(m *mockDerivation) {
				m.On("Salt", mock.Anything, "", "a", "s").Return(model.Salt{}, model.ErrMissingClaim).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  model.ErrMissingClaim.Error(),
		},
		{
			name: "internal error",
			body: `{"iss":"i","aud":"a","sub":"s"}`,
			setup: func(m *mockDerivation) {
				m.On("Salt", mock.Anything, "i", "a", "s").Return(model.Salt{}, assert.AnError).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantKey:    "error",
			wantValue:  "internal server error",
		},
		{
			name:       "invalid json",
			body:       `{"iss":`,
			setup:      func(*mockDerivation) {},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
		},
		{
			name:       "unknown field",
			body:       `{"iss":"i","aud":"a","sub":"s","extra":1}`,
			setup:      func(*mockDerivation) {},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &mockDerivation{}
			tt.setup(svc)
			h := NewDerivation(svc, testutil.MakeNoopLogger())

			rec := do(h.Salt, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			require.Contains(t, body, tt.wantKey)
			if tt.wantValue != "" {
				assert.Equal(t, tt.wantValue, body[tt.wantKey])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestDerivation_ZkAddr(t *testing.T) {
	svc := &mockDerivation{}
	h := NewDerivation(svc, testutil.MakeNoopLogger())

	var salt model.Salt
	salt[30] = 1
	var zk model.ZkAddress
	zk[31] = 9
	svc.On("ZkAddr", mock.Anything, "i", "a", "s", salt).Return(zk, nil).Once()

	rec := do(h.ZkAddr, `{"iss":"i","aud":"a","sub":"s","user_salt_hex":"0x01"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, zk.Hex(), decodeBody(t, rec)["zk_addr"])

	rec = do(h.ZkAddr, `{"iss":"i","aud":"a","sub":"s","user_salt_hex":"nothex"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestDerivation_Health(t *testing.T) {
	h := NewDerivation(&mockDerivation{}, testutil.MakeNoopLogger())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
