// Package checkpoint persists scrape progress so an interrupted run can resume
// without redoing completed work.
//
// A Store is not safe for concurrent use. The pipeline coordinator is its
// only writer and mutates it between batches.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/metrics"
)

// ErrCorrupt is returned by Load when the persisted file cannot be decoded.
var ErrCorrupt = errors.New("checkpoint corrupt")

// State is the persisted checkpoint document.
type State struct {
	Processed       []string                `json:"processed_urls"`
	Failed          []string                `json:"failed_urls"`
	Records         []catalog.ProductRecord `json:"scraped_products"`
	DiscoveredTotal int                     `json:"total_found_products"`
	SavedAt         time.Time               `json:"saved_at"`
	FailureReasons  map[string]string       `json:"failure_reasons"`
}

func (s *State) normalize() {
	if s.Processed == nil {
		s.Processed = []string{}
	}
	if s.Failed == nil {
		s.Failed = []string{}
	}
	if s.Records == nil {
		s.Records = []catalog.ProductRecord{}
	}
	if s.FailureReasons == nil {
		s.FailureReasons = map[string]string{}
	}
}

// Store tracks processed and failed URLs plus the records scraped so far.
type Store struct {
	objects catalog.ObjectStore
	path    string
	clock   catalog.Clock

	state     State
	processed map[string]struct{}
	failed    map[string]struct{}
}

// New creates a Store persisting to path inside objects. The store starts
// empty; call Load to restore a previous run.
func New(objects catalog.ObjectStore, path string, clock catalog.Clock) *Store {
	s := &Store{objects: objects, path: path, clock: clock}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.state = State{}
	s.state.normalize()
	s.processed = map[string]struct{}{}
	s.failed = map[string]struct{}{}
}

// Path is the object path of the checkpoint file.
func (s *Store) Path() string { return s.path }

// Load restores the last persisted state. A missing file yields an empty
// state; an undecodable file is an error wrapping ErrCorrupt.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.objects.GetObject(ctx, s.path)
	if errors.Is(err, catalog.ErrObjectNotFound) {
		s.reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, s.path, err)
	}
	st.normalize()

	s.reset()
	s.state = st
	for _, u := range st.Processed {
		s.processed[u] = struct{}{}
	}
	for _, u := range st.Failed {
		s.failed[u] = struct{}{}
	}
	s.repair()
	return nil
}

// repair rebuilds the URL lists from the sets, dropping duplicates and
// letting processed win over failed.
func (s *Store) repair() {
	for u := range s.processed {
		delete(s.failed, u)
		delete(s.state.FailureReasons, u)
	}
	s.state.Processed = dedupe(s.state.Processed, nil)
	s.state.Failed = dedupe(s.state.Failed, s.processed)
}

// Remaining returns all minus processed and failed URLs, preserving the order
// of all and dropping repeats.
func (s *Store) Remaining(all []string) []string {
	seen := make(map[string]struct{}, len(all))
	out := make([]string, 0, len(all))
	for _, u := range all {
		if _, ok := s.processed[u]; ok {
			continue
		}
		if _, ok := s.failed[u]; ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// RecordOutcome files the outcome. Only a processed outcome (success with a
// title) lands in the processed set; anything else is failed with a reason.
func (s *Store) RecordOutcome(o catalog.Outcome) {
	if o.Processed() {
		s.dropFailed(o.URL)
		if _, ok := s.processed[o.URL]; !ok {
			s.processed[o.URL] = struct{}{}
			s.state.Processed = append(s.state.Processed, o.URL)
		}
		s.putRecord(*o.Record)
		return
	}

	if _, ok := s.processed[o.URL]; ok {
		delete(s.processed, o.URL)
		s.state.Processed = remove(s.state.Processed, o.URL)
		s.dropRecord(o.URL)
	}
	if _, ok := s.failed[o.URL]; !ok {
		s.failed[o.URL] = struct{}{}
		s.state.Failed = append(s.state.Failed, o.URL)
	}
	s.state.FailureReasons[o.URL] = Reason(o)
}

// Reason renders the failure reason stored for an outcome.
func Reason(o catalog.Outcome) string {
	kind := o.ApplyTitlePolicy().Kind
	if kind == catalog.OutcomeFailed && o.Err != nil {
		return fmt.Sprintf("%s: %v", kind, o.Err)
	}
	return string(kind)
}

// Requeue forgets failed URLs whose reason is of the given kind so the next
// Remaining call returns them again. It reports how many were requeued.
func (s *Store) Requeue(kind catalog.OutcomeKind) int {
	prefix := string(kind) + ": "
	kept := s.state.Failed[:0]
	n := 0
	for _, u := range s.state.Failed {
		reason := s.state.FailureReasons[u]
		if reason == string(kind) || strings.HasPrefix(reason, prefix) {
			delete(s.failed, u)
			delete(s.state.FailureReasons, u)
			n++
			continue
		}
		kept = append(kept, u)
	}
	s.state.Failed = kept
	return n
}

// SetDiscoveredTotal records the size of the latest discovery.
func (s *Store) SetDiscoveredTotal(n int) {
	s.state.DiscoveredTotal = n
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	st := State{
		Processed:       append([]string{}, s.state.Processed...),
		Failed:          append([]string{}, s.state.Failed...),
		Records:         append([]catalog.ProductRecord{}, s.state.Records...),
		DiscoveredTotal: s.state.DiscoveredTotal,
		SavedAt:         s.state.SavedAt,
		FailureReasons:  make(map[string]string, len(s.state.FailureReasons)),
	}
	for k, v := range s.state.FailureReasons {
		st.FailureReasons[k] = v
	}
	return st
}

// Save persists the full state atomically.
func (s *Store) Save(ctx context.Context) error {
	if s.clock != nil {
		s.state.SavedAt = s.clock.Now()
	} else {
		s.state.SavedAt = time.Now().UTC()
	}
	data, err := catalog.EncodeJSON(s.state)
	if err != nil {
		metrics.ObserveCheckpointSave("error")
		return err
	}
	if _, err := s.objects.PutObject(ctx, s.path, "application/json", bytes.NewReader(data)); err != nil {
		metrics.ObserveCheckpointSave("error")
		return fmt.Errorf("write checkpoint: %w", err)
	}
	metrics.ObserveCheckpointSave("ok")
	return nil
}

// Reset deletes the persisted checkpoint and clears the in-memory state.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.objects.DeleteObject(ctx, s.path); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	s.reset()
	return nil
}

func (s *Store) putRecord(rec catalog.ProductRecord) {
	for i := range s.state.Records {
		if s.state.Records[i].URL == rec.URL {
			s.state.Records[i] = rec
			return
		}
	}
	s.state.Records = append(s.state.Records, rec)
}

func (s *Store) dropRecord(u string) {
	out := s.state.Records[:0]
	for _, rec := range s.state.Records {
		if rec.URL != u {
			out = append(out, rec)
		}
	}
	s.state.Records = out
}

func (s *Store) dropFailed(u string) {
	if _, ok := s.failed[u]; !ok {
		return
	}
	delete(s.failed, u)
	delete(s.state.FailureReasons, u)
	s.state.Failed = remove(s.state.Failed, u)
}

func remove(list []string, u string) []string {
	out := list[:0]
	for _, v := range list {
		if v != u {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, u := range list {
		if _, ok := exclude[u]; ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
