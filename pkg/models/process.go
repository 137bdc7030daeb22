package models

import (
	"fmt"
	"time"
)

// AssetStatus tracks the preprocessing state of one source asset. Rows are
// never deleted; a Finished row is the proof that MMRK artifacts exist and
// that a later job may skip preprocessing.
type AssetStatus struct {
	AssetID string          `json:"AssetId"`
	State   ExecutionStatus `json:"State"`
}

// JobStatus tracks one end-to-end watermarking request for an asset. A job
// belongs to exactly one asset; the store keys it by (assetID, jobID).
type JobStatus struct {
	JobID         string          `json:"JobId"`
	State         ExecutionStatus `json:"State"`
	Details       string          `json:"Details"`
	StartTime     time.Time       `json:"StartTime"`
	FinishTime    *time.Time      `json:"FinishTime,omitempty"`
	Duration      string          `json:"Duration,omitempty"`
	EmbeddedCodes []string        `json:"EmbeddedCodeList"`
}

// Finalize stamps the terminal bookkeeping fields. Safe to call on an
// already-finalized job; the original finish time wins.
func (j *JobStatus) Finalize(now time.Time) {
	if j.FinishTime != nil {
		return
	}
	t := now
	j.FinishTime = &t
	j.Duration = now.Sub(j.StartTime).String()
}

// WatermarkedAssetInfo is the per-embed-code progress record. AssetID names
// the output asset and stays empty until assembly succeeds, which is what
// makes assembly safely resumable.
type WatermarkedAssetInfo struct {
	ParentAssetID string          `json:"ParentAssetId"`
	EmbeddedCode  string          `json:"EmbeddedCodeValue"`
	State         ExecutionStatus `json:"State"`
	AssetID       string          `json:"AssetId"`
	Details       string          `json:"Details"`
}

// MMRKStatus is the per-rendition preprocessing record, keyed by
// (AssetID, MMRKRowKey(JobID, FileName)).
type MMRKStatus struct {
	JobID    string          `json:"JobId"`
	AssetID  string          `json:"AssetId"`
	FileName string          `json:"FileName"`
	State    ExecutionStatus `json:"State"`
	Details  string          `json:"Details"`
	FileURL  string          `json:"FileURL"`
}

// WatermarkedRender is the per-(embed code, rendition) embedding record,
// keyed by (RenderPartition(ParentAssetID, EmbeddedCode), RenderName).
// Rows are deleted once consumed into an output asset.
type WatermarkedRender struct {
	ParentAssetID string          `json:"ParentAssetId"`
	EmbeddedCode  string          `json:"EmbeddedCodeValue"`
	RenderName    string          `json:"RenderName"`
	State         ExecutionStatus `json:"State"`
	MP4URL        string          `json:"MP4URL"`
	Details       string          `json:"Details"`
}

// AssetProcessLock is the exclusive per-asset admission lock. At most one row
// exists per asset; acquisition is insert-fails-if-exists.
type AssetProcessLock struct {
	AssetID string `json:"AssetId"`
	JobID   string `json:"JobId"`
}

// UnifiedProcessStatus is the full status bundle returned by every
// state-mutating operation so callers can poll-and-inspect instead of
// depending on error semantics.
type UnifiedProcessStatus struct {
	AssetStatus       AssetStatus            `json:"AssetStatus"`
	JobStatus         JobStatus              `json:"JobStatus"`
	EmbeddedCodesList []WatermarkedAssetInfo `json:"EmbeddedCodesList"`
}

// MMRKRowKey builds the row key of an MMRK record. The job id is part of the
// key so renditions from different jobs for the same asset never collide.
func MMRKRowKey(jobID, fileName string) string {
	return fmt.Sprintf("[%s]%s", jobID, fileName)
}

// RenderPartition builds the partition key grouping all renders of one embed
// code under one parent asset.
func RenderPartition(parentAssetID, embeddedCode string) string {
	return fmt.Sprintf("%s-%s", parentAssetID, embeddedCode)
}
