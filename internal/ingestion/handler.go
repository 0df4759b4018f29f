package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	httperr "github.com/aevon-lab/matview/internal/core/errors"
	"github.com/aevon-lab/matview/internal/core/partition"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/metrics"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgPersistFailed   = "Failed to persist record"
	msgDuplicateRecord = "Record already exists"
)

// ingestRequest is the client-facing envelope. Sequence tokens are never
// accepted from clients; the change source assigns them.
type ingestRequest struct {
	SourceKey   string                 `json:"source_key"`
	PartitionID *int                   `json:"partition_id,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
	result     string
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles POST /v1/records.
func (s *Service) IngestHandler(c *gin.Context) {
	rec, payloadSize, err := s.parseRecord(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.validateRecord(rec); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.persistRecord(c.Request.Context(), rec); err != nil {
		s.writeError(c, err)
		return
	}

	slog.Info("Received Record",
		"source_key", rec.SourceKey,
		"partition_id", rec.PartitionID,
		"sequence_token", rec.SequenceToken,
		"payload_size", payloadSize)

	s.recorder.RecordIngested(metrics.IngestAccepted)
	// Record appended to the source. The partition worker picks it up on its next poll.
	c.JSON(http.StatusAccepted, gin.H{
		"status":         "accepted",
		"partition_id":   rec.PartitionID,
		"sequence_token": rec.SequenceToken,
	})
}

// parseRecord reads the raw request body and decodes it into a ChangeRecord.
// Numbers are kept as json.Number so prices reach the aggregator without float rounding.
func (s *Service) parseRecord(c *gin.Context) (*v1.ChangeRecord, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
			result:     metrics.IngestError,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
			result: metrics.IngestInvalid,
		}
	}

	var req ingestRequest
	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
			result:     metrics.IngestInvalid,
		}
	}

	rec := &v1.ChangeRecord{
		SourceKey:  req.SourceKey,
		OccurredAt: req.OccurredAt,
		Payload:    req.Payload,
	}
	if req.PartitionID != nil {
		rec.PartitionID = *req.PartitionID
	} else {
		rec.PartitionID = partition.For(req.SourceKey, s.partitions)
	}
	return rec, len(bodyBytes), nil
}

// validateRecord checks the envelope. Payload shape is checked by the aggregator,
// which turns malformed payloads into dead letters instead of rejecting them here.
func (s *Service) validateRecord(rec *v1.ChangeRecord) *ingestionError {
	err := rec.Validate()
	if err == nil && rec.PartitionID >= s.partitions {
		err = fmt.Errorf("partition_id must be < %d", s.partitions)
	}
	if err != nil {
		slog.Warn("Envelope validation failed", "error", err, "source_key", rec.SourceKey)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    err.Error(),
			result:     metrics.IngestInvalid,
		}
	}
	return nil
}

// persistRecord appends the record to the change source.
func (s *Service) persistRecord(ctx context.Context, rec *v1.ChangeRecord) *ingestionError {
	if err := s.store.Append(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Info("Duplicate record rejected", "source_key", rec.SourceKey)
			return &ingestionError{
				statusCode: http.StatusConflict,
				errorType:  httperr.HttpDuplicateRecordError,
				message:    msgDuplicateRecord,
				result:     metrics.IngestDuplicate,
			}
		}

		slog.Error("Failed to persist record", "error", err, "source_key", rec.SourceKey)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
			result:     metrics.IngestError,
		}
	}

	return nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func (s *Service) writeError(c *gin.Context, err *ingestionError) {
	s.recorder.RecordIngested(err.result)
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
