package handler

import (
	"net/http"
)

// handleWALStatus handles GET /v1/wal/status.
func (h *Handler) handleWALStatus(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	rec := h.engine.Recovered()
	fs := h.engine.FileStats()

	resp := WALStatusResponse{
		Healthy:  st.Err == nil,
		SyncMode: string(st.SyncMode),
		OpenTxns: st.OpenTxns,
		Segment: SegmentStatus{
			Sequence:  st.Segment,
			Bytes:     st.SegmentSize,
			Records:   st.SegmentRecords,
			CreatedAt: st.SegmentCreated.UTC(),
		},
		Recovery: RecoveryStatus{
			Segments:       rec.Segments,
			Records:        rec.Records,
			Committed:      rec.Transactions.Committed,
			Aborted:        rec.Transactions.Aborted,
			Incomplete:     rec.Transactions.Incomplete,
			Applied:        rec.Applied,
			AlreadyApplied: rec.AlreadyApplied,
			Deferred:       rec.Deferred,
			Skipped:        rec.Skipped,
			DurationMS:     rec.Duration.Milliseconds(),
			Draining:       h.engine.Draining(),
		},
		FileOps: FileOpsStatus{
			Requested: fs.Requested,
			Completed: fs.Completed,
			Failed:    fs.Failed,
			Pending:   fs.Pending,
		},
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if rec.TornTail != nil {
		resp.Recovery.TornTail = rec.TornTail.String()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleCheckpoint handles POST /v1/wal/checkpoint.
func (h *Handler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Checkpoint(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := CheckpointResponse{
		Removed:    res.Removed,
		BytesFreed: res.BytesFreed,
	}
	if resp.Removed == nil {
		resp.Removed = []uint64{}
	}
	if res.BlockedBy != nil {
		resp.BlockedBy = res.BlockedBy.String()
	}
	h.logger.InfoContext(r.Context(), "checkpoint requested",
		"removed", len(res.Removed),
		"bytes_freed", res.BytesFreed,
	)
	h.writeJSON(w, r, http.StatusOK, resp)
}
