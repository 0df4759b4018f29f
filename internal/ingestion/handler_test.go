package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	httperr "github.com/aevon-lab/matview/internal/core/errors"
	"github.com/aevon-lab/matview/internal/core/partition"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/metrics"
	storagemocks "github.com/aevon-lab/matview/internal/mocks/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	results map[string]int
}

func (r *countingRecorder) RecordIngested(result string) {
	if r.results == nil {
		r.results = make(map[string]int)
	}
	r.results[result]++
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func post(r http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/records", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	return errResp
}

const cartBody = `{
	"source_key": "cart-42-purchase",
	"payload": {"cart_id": 42, "action": "Purchased", "item": "Socks", "price": 19.99, "buyer_region": "CA"}
}`

func TestIngestHandler_Success(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	mockStore.EXPECT().
		Append(mock.Anything, mock.MatchedBy(func(r *v1.ChangeRecord) bool {
			price, ok := r.Payload["price"].(json.Number)
			return r.SourceKey == "cart-42-purchase" &&
				r.PartitionID == partition.For("cart-42-purchase", 4) &&
				ok && price.String() == "19.99"
		})).
		Run(func(_ context.Context, r *v1.ChangeRecord) { r.SequenceToken = 7 }).
		Return(nil).
		Once()

	rec := &countingRecorder{}
	resp := post(newRouter(NewService(mockStore, 4, 1, rec)), []byte(cartBody))

	require.Equal(t, http.StatusAccepted, resp.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "accepted", result["status"])
	assert.Equal(t, float64(7), result["sequence_token"])
	assert.Equal(t, 1, rec.results[metrics.IngestAccepted])
}

func TestIngestHandler_ExplicitPartition(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	mockStore.EXPECT().
		Append(mock.Anything, mock.MatchedBy(func(r *v1.ChangeRecord) bool { return r.PartitionID == 2 })).
		Return(nil).
		Once()

	body := []byte(`{"source_key": "k", "partition_id": 2, "payload": {"action": "Viewed"}}`)
	resp := post(newRouter(NewService(mockStore, 4, 1, nil)), body)

	require.Equal(t, http.StatusAccepted, resp.Code)
}

func TestIngestHandler_ExplicitPartitionBounds(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	mockStore.EXPECT().
		Append(mock.Anything, mock.MatchedBy(func(r *v1.ChangeRecord) bool { return r.PartitionID == 3 })).
		Return(nil).
		Once()
	r := newRouter(NewService(mockStore, 4, 1, nil))

	resp := post(r, []byte(`{"source_key": "last", "partition_id": 3, "payload": {"action": "Viewed"}}`))
	require.Equal(t, http.StatusAccepted, resp.Code)

	resp = post(r, []byte(`{"source_key": "past", "partition_id": 4, "payload": {"action": "Viewed"}}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decodeError(t, resp).Message, "partition_id must be < 4")
}

func TestIngestHandler_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantType   string
	}{
		{
			name:       "malformed json",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
		{
			name:       "missing source key",
			body:       `{"payload": {"action": "Viewed"}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
		{
			name:       "missing payload",
			body:       `{"source_key": "k"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
		{
			name:       "partition out of range",
			body:       `{"source_key": "k", "partition_id": 9, "payload": {}}`,
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidJsonError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockStore := storagemocks.NewRecordStore(t)
			rec := &countingRecorder{}
			resp := post(newRouter(NewService(mockStore, 4, 1, rec)), []byte(tt.body))

			require.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantType, decodeError(t, resp).ErrorType)
			assert.Equal(t, 1, rec.results[metrics.IngestInvalid])
		})
	}
}

func TestIngestHandler_DuplicateRecord(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	mockStore.EXPECT().
		Append(mock.Anything, mock.Anything).
		Return(storage.ErrDuplicate).
		Once()

	rec := &countingRecorder{}
	resp := post(newRouter(NewService(mockStore, 4, 1, rec)), []byte(cartBody))

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, httperr.HttpDuplicateRecordError, decodeError(t, resp).ErrorType)
	assert.Equal(t, 1, rec.results[metrics.IngestDuplicate])
}

func TestIngestHandler_StorageError(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	mockStore.EXPECT().
		Append(mock.Anything, mock.Anything).
		Return(errors.New("database connection failed")).
		Once()

	resp := post(newRouter(NewService(mockStore, 4, 1, nil)), []byte(cartBody))

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, httperr.HttpInternalError, decodeError(t, resp).ErrorType)
}

func TestIngestHandler_BodySizeLimit(t *testing.T) {
	mockStore := storagemocks.NewRecordStore(t)
	svc := NewService(mockStore, 4, 1, nil)
	svc.maxBodySizeBytes = 10 // Very small limit

	resp := post(newRouter(svc), []byte(cartBody))

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	errResp := decodeError(t, resp)
	assert.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
	assert.Contains(t, errResp.Message, "maximum allowed size")
}
