package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/getsentry/cpuprof/internal/cpuprofile"
	"github.com/getsentry/cpuprof/internal/errorutil"
	"github.com/getsentry/cpuprof/internal/httputil"
	"github.com/getsentry/cpuprof/internal/metrics"
	"github.com/getsentry/cpuprof/internal/nodetree"
	"github.com/getsentry/cpuprof/internal/pprofutil"
	"github.com/getsentry/cpuprof/internal/speedscope"
	"github.com/getsentry/cpuprof/internal/storageutil"
)

const (
	maxUniqueFunctions = 100
	maxNumOfExamples   = 5
)

type (
	// storedProfile is what gets written to the bucket: the raw profile as
	// received, with the metadata needed to serve it again.
	storedProfile struct {
		OrganizationID uint64          `json:"organization_id"`
		Profile        json.RawMessage `json:"profile"`
		ProfileID      string          `json:"profile_id"`
		ProjectID      uint64          `json:"project_id"`
		Received       time.Time       `json:"received"`
	}

	// loadedProfile is a stored profile rebuilt for a read request.
	loadedProfile struct {
		storedProfile

		keepNatives bool
		logger      zerolog.Logger
		model       *cpuprofile.Model
	}

	PostProfileResponse struct {
		CallTrees    []*nodetree.Node `json:"call_trees"`
		FixedSamples int              `json:"fixed_samples"`
		ProfileID    string           `json:"profile_id"`
	}
)

func (p storedProfile) StoragePath() string {
	return fmt.Sprintf("%d/%d/%s", p.OrganizationID, p.ProjectID, p.ProfileID)
}

// errorStatus maps an error to the HTTP status code reported to the client.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storageutil.ErrObjectNotFound):
		return http.StatusNotFound
	case errorutil.IsDataIntegrity(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, hub *sentry.Hub, status int, v interface{}) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (e *environment) keepNatives(w http.ResponseWriter, r *http.Request) (bool, bool) {
	keepNatives, err := httputil.GetBoolQueryParameter(r, "keep_natives", e.config.KeepNatives)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false, false
	}
	return keepNatives, true
}

func (e *environment) postProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	params, logger, ok := httputil.GetRequiredPathParameters(w, r, "organization_id", "project_id")
	if !ok {
		return
	}
	keepNatives, ok := e.keepNatives(w, r)
	if !ok {
		return
	}

	s := sentry.StartSpan(ctx, "request.body")
	s.Description = "Read request body"
	body, err := io.ReadAll(r.Body)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Unmarshal CPU profile"
	raw, err := cpuprofile.Decode(body)
	s.Finish()
	if err != nil {
		logger.Err(err).Msg("profile can't be unmarshaled")
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s = sentry.StartSpan(ctx, "profile.model")
	s.Description = "Reconstruct CPU profile"
	m, err := cpuprofile.New(raw, cpuprofile.Options{KeepNatives: keepNatives})
	s.Finish()
	if err != nil {
		logger.Err(err).Msg("profile can't be reconstructed")
		hub.CaptureException(err)
		w.WriteHeader(errorStatus(err))
		return
	}

	p := storedProfile{
		OrganizationID: params["organization_id"],
		Profile:        json.RawMessage(body),
		ProfileID:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		ProjectID:      params["project_id"],
		Received:       time.Now().UTC(),
	}
	hub.Scope().SetTag("profile_id", p.ProfileID)

	s = sentry.StartSpan(ctx, "gcs.write")
	s.Description = "Write profile to storage"
	err = storageutil.CompressedWrite(ctx, e.storage, p.StoragePath(), p)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "calltree")
	s.Description = "Generate call trees"
	callTrees := nodetree.FromModel(m)
	functions := nodetree.CollectFunctions(callTrees)
	s.Finish()

	s = sentry.StartSpan(ctx, "processing.kafka")
	s.Description = "Publish call trees and functions"
	err = e.publish(ctx, p, callTrees, functions)
	s.Finish()
	if err != nil {
		logger.Err(err).Str("profile_id", p.ProfileID).Msg("can't publish call trees")
		hub.CaptureException(err)
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal call trees"
	defer s.Finish()

	writeJSON(w, hub, http.StatusCreated, PostProfileResponse{
		CallTrees:    callTrees,
		FixedSamples: m.FixedSamples,
		ProfileID:    p.ProfileID,
	})
}

// loadModel reads a stored profile and reconstructs it, writing the error
// status on failure.
func (e *environment) loadModel(ctx context.Context, w http.ResponseWriter, r *http.Request) (loadedProfile, bool) {
	hub := sentry.GetHubFromContext(ctx)
	params, logger, ok := httputil.GetRequiredPathParameters(w, r, "organization_id", "project_id")
	if !ok {
		return loadedProfile{}, false
	}
	keepNatives, ok := e.keepNatives(w, r)
	if !ok {
		return loadedProfile{}, false
	}
	profileID, err := parseProfileID(httprouter.ParamsFromContext(ctx).ByName("profile_id"))
	if err != nil {
		http.Error(w, "expected profile_id to be a uuid", http.StatusBadRequest)
		return loadedProfile{}, false
	}
	logger = logger.With().Str("profile_id", profileID).Logger()
	hub.Scope().SetTag("profile_id", profileID)

	p := storedProfile{
		OrganizationID: params["organization_id"],
		ProfileID:      profileID,
		ProjectID:      params["project_id"],
	}

	s := sentry.StartSpan(ctx, "gcs.read")
	s.Description = "Read profile from storage"
	err = storageutil.UnmarshalCompressed(ctx, e.storage, p.StoragePath(), &p)
	s.Finish()
	if err != nil {
		if !errors.Is(err, storageutil.ErrObjectNotFound) {
			hub.CaptureException(err)
		}
		logger.Err(err).Msg("profile can't be read")
		w.WriteHeader(errorStatus(err))
		return loadedProfile{}, false
	}

	raw, err := cpuprofile.Decode(p.Profile)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return loadedProfile{}, false
	}
	m, err := cpuprofile.New(raw, cpuprofile.Options{KeepNatives: keepNatives})
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(errorStatus(err))
		return loadedProfile{}, false
	}
	return loadedProfile{
		keepNatives:   keepNatives,
		logger:        logger,
		model:         m,
		storedProfile: p,
	}, true
}

// parseProfileID accepts a uuid with or without dashes and returns the
// dashless form profiles are stored under.
func parseProfileID(raw string) (string, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}

func (e *environment) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	p, ok := e.loadModel(ctx, w, r)
	if !ok {
		return
	}

	s := sentry.StartSpan(ctx, "profile.speedscope")
	s.Description = "Generate speedscope profile"
	output := speedscope.FromModel(p.model, speedscope.ProfileMetadata{
		KeepNatives:    p.keepNatives,
		OrganizationID: p.OrganizationID,
		ProfileID:      p.ProfileID,
		ProjectID:      p.ProjectID,
		Received:       p.Received,
	})
	s.Finish()

	s = sentry.StartSpan(ctx, "json.marshal")
	defer s.Finish()
	writeJSON(w, hub, http.StatusOK, output)
}

func (e *environment) getPprof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	p, ok := e.loadModel(ctx, w, r)
	if !ok {
		return
	}

	s := sentry.StartSpan(ctx, "profile.pprof")
	s.Description = "Generate pprof profile"
	defer s.Finish()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.ProfileID+".pb.gz"))
	if err := pprofutil.Write(w, p.model, p.Received); err != nil {
		p.logger.Err(err).Msg("pprof profile can't be written")
		hub.CaptureException(err)
	}
}

func (e *environment) getFunctions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	p, ok := e.loadModel(ctx, w, r)
	if !ok {
		return
	}

	s := sentry.StartSpan(ctx, "calltree")
	s.Description = "Aggregate functions"
	ma := metrics.NewAggregator(maxUniqueFunctions, maxNumOfExamples)
	ma.AddCallTrees(nodetree.FromModel(p.model), p.ProfileID)
	functions := ma.ToMetrics()
	s.Finish()

	s = sentry.StartSpan(ctx, "json.marshal")
	defer s.Finish()
	writeJSON(w, hub, http.StatusOK, functions)
}
