package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gonum.org/v1/gonum/mat"

	"github.com/TomKellyGenetics/swne/internal/embed"
	"github.com/TomKellyGenetics/swne/internal/graph"
	"github.com/TomKellyGenetics/swne/internal/storage"
	"github.com/TomKellyGenetics/swne/pkg/models"
)

// GraphEdge is one similarity edge between two samples, by index into the
// request's sample list.
type GraphEdge struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Weight float64 `json:"weight"`
}

// EmbedRequest carries the factorization output and similarity graph for a
// full embedding run. Scores are row-major, one row per factor.
type EmbedRequest struct {
	Name    string                  `json:"name"`
	Factors []string                `json:"factors"`
	Samples []string                `json:"samples"`
	Scores  [][]float64             `json:"scores"`
	Graph   []GraphEdge             `json:"graph,omitempty"`
	Params  *models.EmbeddingParams `json:"params,omitempty"`
}

// EmbeddingResponse is the full representation of a stored embedding.
type EmbeddingResponse struct {
	Summary      models.EmbeddingSummary `json:"summary"`
	Anchors      []models.Coordinate     `json:"anchors"`
	Samples      []models.Coordinate     `json:"samples"`
	Features     []models.Coordinate     `json:"features,omitempty"`
	Degeneracies []models.Degeneracy     `json:"degeneracies,omitempty"`
}

func (s *Server) handleCreateEmbedding(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scores, err := scoreMatrixFromRequest(req.Factors, req.Samples, req.Scores)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	var g *graph.Sparse
	if len(req.Graph) > 0 {
		g = graph.NewSparse(req.Samples)
		for _, e := range req.Graph {
			if err := g.AddEdge(e.From, e.To, e.Weight); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	params := s.paramsFromRequest(req.Params)
	emb, degeneracies, err := embed.EmbedSWNE(scores, g, params)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.logDegeneracies(req.Name, degeneracies)

	rec := &storage.EmbeddingRecord{
		Name:    req.Name,
		Factors: scores.K(),
		Samples: scores.N(),
		Params:  wireParams(params),
	}
	anchors := anchorCoordinates(emb)
	samples := pointCoordinates(models.KindSample, emb.Samples)
	if err := s.repo.Create(r.Context(), rec, append(anchors, samples...)); err != nil {
		s.logger.Error("persist embedding", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to persist embedding")
		return
	}
	if err := s.repo.SaveScoreVectors(r.Context(), rec.ID, scoreVectors(scores)); err != nil {
		s.logger.Error("persist score vectors", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to persist score vectors")
		return
	}

	respondJSON(w, http.StatusCreated, EmbeddingResponse{
		Summary:      summaryFromRecord(rec),
		Anchors:      anchors,
		Samples:      samples,
		Degeneracies: wireDegeneracies(degeneracies),
	})
}

// FeatureEmbedRequest places a subset of features onto a stored layout.
// Loadings are row-major, one row per feature.
type FeatureEmbedRequest struct {
	Features []string    `json:"features"`
	Factors  []string    `json:"factors"`
	Loadings [][]float64 `json:"loadings"`
	Subset   []string    `json:"subset,omitempty"`
	NPull    int         `json:"n_pull,omitempty"`
	AlphaExp float64     `json:"alpha_exp,omitempty"`
}

func (s *Server) handleEmbedFeatures(w http.ResponseWriter, r *http.Request) {
	rec, emb, ok := s.loadEmbedding(w, r)
	if !ok {
		return
	}

	var req FeatureEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loadings, err := loadingMatrixFromRequest(req.Features, req.Factors, req.Loadings)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if err := alignAnchors(emb, req.Factors); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	nPull := req.NPull
	if nPull == 0 {
		nPull = rec.Params.NPull
	}
	alpha := req.AlphaExp
	if alpha == 0 {
		alpha = rec.Params.AlphaExp
	}

	out, degeneracies, err := embed.EmbedFeatures(emb, loadings, req.Subset, nPull, alpha)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.logDegeneracies(rec.Name, degeneracies)

	features := pointCoordinates(models.KindFeature, out.Features)
	if err := s.repo.ReplaceCoordinates(r.Context(), rec.ID, models.KindFeature, features); err != nil {
		s.logger.Error("persist feature coordinates", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to persist feature coordinates")
		return
	}

	rec.Features = len(features)
	respondJSON(w, http.StatusOK, EmbeddingResponse{
		Summary:      summaryFromRecord(rec),
		Features:     features,
		Degeneracies: wireDegeneracies(degeneracies),
	})
}

// BipartiteEdge links a new sample to a training sample of the stored
// embedding, by name.
type BipartiteEdge struct {
	Sample   string  `json:"sample"`
	Neighbor string  `json:"neighbor"`
	Weight   float64 `json:"weight"`
}

// ProjectRequest projects new samples onto a stored layout. Scores are
// row-major, one row per factor, columns following Samples.
type ProjectRequest struct {
	Samples  []string        `json:"samples"`
	Factors  []string        `json:"factors"`
	Scores   [][]float64     `json:"scores"`
	Edges    []BipartiteEdge `json:"edges,omitempty"`
	NPull    int             `json:"n_pull,omitempty"`
	AlphaExp float64         `json:"alpha_exp,omitempty"`
	SNNExp   float64         `json:"snn_exp,omitempty"`
}

// ProjectResponse returns the projected coordinates. The stored embedding is
// left untouched.
type ProjectResponse struct {
	Samples      []models.Coordinate `json:"samples"`
	Degeneracies []models.Degeneracy `json:"degeneracies,omitempty"`
}

func (s *Server) handleProjectSamples(w http.ResponseWriter, r *http.Request) {
	rec, emb, ok := s.loadEmbedding(w, r)
	if !ok {
		return
	}

	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newScores, err := scoreMatrixFromRequest(req.Factors, req.Samples, req.Scores)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	if err := alignAnchors(emb, req.Factors); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var bg *graph.Bipartite
	if len(req.Edges) > 0 {
		bg, err = bipartiteFromEdges(req.Samples, emb, req.Edges)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	params := embed.ProjectParams{NPull: req.NPull, Alpha: req.AlphaExp, SNNExp: req.SNNExp}
	if params.NPull == 0 {
		params.NPull = rec.Params.NPull
	}
	if params.Alpha == 0 {
		params.Alpha = rec.Params.AlphaExp
	}
	if params.SNNExp == 0 {
		params.SNNExp = rec.Params.SNNExp
	}

	projected, degeneracies, err := embed.ProjectSamples(emb, newScores, bg, params)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.logDegeneracies(rec.Name, degeneracies)

	respondJSON(w, http.StatusOK, ProjectResponse{
		Samples:      pointCoordinates(models.KindSample, projected),
		Degeneracies: wireDegeneracies(degeneracies),
	})
}

// SummarizeRequest ranks features within each factor of a loading matrix.
type SummarizeRequest struct {
	Features []string    `json:"features"`
	Factors  []string    `json:"factors"`
	Loadings [][]float64 `json:"loadings"`
	TopN     int         `json:"top_n"`
}

func (s *Server) handleSummarizeFeatures(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loadings, err := loadingMatrixFromRequest(req.Features, req.Factors, req.Loadings)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	summary, err := embed.SummarizeAssocFeatures(loadings, req.TopN)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	out := make(map[string][]models.FactorFeature, len(summary))
	for factor, ranked := range summary {
		entries := make([]models.FactorFeature, len(ranked))
		for i, f := range ranked {
			entries[i] = models.FactorFeature{Feature: f.Feature, Loading: f.Loading}
		}
		out[factor] = entries
	}
	respondJSON(w, http.StatusOK, out)
}

// SimilarRequest looks up stored samples nearest to a query score vector.
type SimilarRequest struct {
	Scores []float32 `json:"scores"`
	Limit  int       `json:"limit,omitempty"`
}

func (s *Server) handleFindSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEmbeddingID(w, r)
	if !ok {
		return
	}

	var req SimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.repo.FindSimilarSamples(r.Context(), id, pgvector.NewVector(req.Scores), req.Limit)
	if err != nil {
		s.logger.Error("similarity lookup", "err", err)
		respondError(w, http.StatusInternalServerError, "similarity lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleListEmbeddings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.repo.List(r.Context())
	if err != nil {
		s.logger.Error("list embeddings", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list embeddings")
		return
	}
	summaries := make([]models.EmbeddingSummary, len(recs))
	for i, rec := range recs {
		summaries[i] = summaryFromRecord(rec)
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEmbeddingID(w, r)
	if !ok {
		return
	}

	rec, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get embedding", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load embedding")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "embedding not found")
		return
	}

	resp := EmbeddingResponse{Summary: summaryFromRecord(rec)}
	for kind, dst := range map[models.CoordinateKind]*[]models.Coordinate{
		models.KindAnchor:  &resp.Anchors,
		models.KindSample:  &resp.Samples,
		models.KindFeature: &resp.Features,
	} {
		coords, err := s.repo.GetCoordinates(r.Context(), id, kind)
		if err != nil {
			s.logger.Error("get coordinates", "kind", kind, "err", err)
			respondError(w, http.StatusInternalServerError, "failed to load coordinates")
			return
		}
		*dst = coords
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteEmbedding(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEmbeddingID(w, r)
	if !ok {
		return
	}
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete embedding", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to delete embedding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadEmbedding reconstructs the in-memory embedding from stored coordinates
// for operations that reuse an existing layout.
func (s *Server) loadEmbedding(w http.ResponseWriter, r *http.Request) (*storage.EmbeddingRecord, *embed.Embedding, bool) {
	id, ok := parseEmbeddingID(w, r)
	if !ok {
		return nil, nil, false
	}

	rec, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("get embedding", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load embedding")
		return nil, nil, false
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "embedding not found")
		return nil, nil, false
	}

	anchorCoords, err := s.repo.GetCoordinates(r.Context(), id, models.KindAnchor)
	if err != nil {
		s.logger.Error("get anchor coordinates", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load coordinates")
		return nil, nil, false
	}
	sampleCoords, err := s.repo.GetCoordinates(r.Context(), id, models.KindSample)
	if err != nil {
		s.logger.Error("get sample coordinates", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load coordinates")
		return nil, nil, false
	}

	emb := &embed.Embedding{
		Anchors: make([]embed.Anchor, len(anchorCoords)),
		Samples: make(map[string]embed.Point, len(sampleCoords)),
		Params: embed.Params{
			NPull:    rec.Params.NPull,
			Alpha:    rec.Params.AlphaExp,
			SNNExp:   rec.Params.SNNExp,
			Distance: embed.DistanceMode(rec.Params.Distance),
			Reducer:  rec.Params.Reducer,
			Seed:     rec.Params.Seed,
		},
	}
	for i, c := range anchorCoords {
		emb.Anchors[i] = embed.Anchor{Factor: c.Identifier, Point: embed.Point{X: c.X, Y: c.Y}}
	}
	for _, c := range sampleCoords {
		emb.Samples[c.Identifier] = embed.Point{X: c.X, Y: c.Y}
	}
	return rec, emb, true
}

func (s *Server) paramsFromRequest(override *models.EmbeddingParams) embed.Params {
	p := embed.Params{
		NPull:    s.defaults.NPull,
		Alpha:    s.defaults.AlphaExp,
		SNNExp:   s.defaults.SNNExp,
		Distance: embed.DistanceMode(s.defaults.Distance),
		Reducer:  s.defaults.Reducer,
		Seed:     s.defaults.Seed,
	}
	if override == nil {
		return p
	}
	if override.NPull != 0 {
		p.NPull = override.NPull
	}
	if override.AlphaExp != 0 {
		p.Alpha = override.AlphaExp
	}
	if override.SNNExp != 0 {
		p.SNNExp = override.SNNExp
	}
	if override.Distance != "" {
		p.Distance = embed.DistanceMode(override.Distance)
	}
	if override.Reducer != "" {
		p.Reducer = override.Reducer
	}
	if override.Seed != 0 {
		p.Seed = override.Seed
	}
	return p
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, embed.ErrConfig) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("embedding engine", "err", err)
	respondError(w, http.StatusInternalServerError, "embedding computation failed")
}

func (s *Server) logDegeneracies(name string, degeneracies []embed.Degeneracy) {
	for _, d := range degeneracies {
		s.logger.Warn("degenerate input", "embedding", name, "kind", d.Kind, "id", d.ID)
	}
}

func parseEmbeddingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "embeddingID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid embedding id")
		return uuid.Nil, false
	}
	return id, true
}

func scoreMatrixFromRequest(factors, samples []string, rows [][]float64) (*embed.ScoreMatrix, error) {
	dense, err := denseFromRows(rows, len(factors), len(samples))
	if err != nil {
		return nil, err
	}
	return embed.NewScoreMatrix(factors, samples, dense)
}

func loadingMatrixFromRequest(features, factors []string, rows [][]float64) (*embed.LoadingMatrix, error) {
	dense, err := denseFromRows(rows, len(features), len(factors))
	if err != nil {
		return nil, err
	}
	return embed.NewLoadingMatrix(features, factors, dense)
}

func denseFromRows(rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, embed.ErrConfig
	}
	data := make([]float64, 0, r*c)
	for _, row := range rows {
		if len(row) != c {
			return nil, embed.ErrConfig
		}
		data = append(data, row...)
	}
	if r == 0 || c == 0 {
		return nil, embed.ErrConfig
	}
	return mat.NewDense(r, c, data), nil
}

// alignAnchors permutes a reconstructed embedding's anchors into the
// request's factor order, so clients are not tied to storage ordering.
func alignAnchors(emb *embed.Embedding, factors []string) error {
	if len(factors) != len(emb.Anchors) {
		return errors.New("request factor count does not match stored anchors")
	}
	byName := make(map[string]embed.Anchor, len(emb.Anchors))
	for _, a := range emb.Anchors {
		byName[a.Factor] = a
	}
	aligned := make([]embed.Anchor, len(factors))
	for i, name := range factors {
		a, ok := byName[name]
		if !ok {
			return errors.New("unknown factor " + name)
		}
		aligned[i] = a
	}
	emb.Anchors = aligned
	return nil
}

func bipartiteFromEdges(samples []string, emb *embed.Embedding, edges []BipartiteEdge) (*graph.Bipartite, error) {
	trainNames := make([]string, 0, len(emb.Samples))
	for name := range emb.Samples {
		trainNames = append(trainNames, name)
	}
	sort.Strings(trainNames)
	trainIndex := make(map[string]int, len(trainNames))
	for i, name := range trainNames {
		trainIndex[name] = i
	}
	rowIndex := make(map[string]int, len(samples))
	for i, name := range samples {
		rowIndex[name] = i
	}

	bg := graph.NewBipartite(samples, trainNames)
	for _, e := range edges {
		i, ok := rowIndex[e.Sample]
		if !ok {
			return nil, errors.New("edge references unknown new sample " + e.Sample)
		}
		j, ok := trainIndex[e.Neighbor]
		if !ok {
			return nil, errors.New("edge references unknown training sample " + e.Neighbor)
		}
		if err := bg.AddEdge(i, j, e.Weight); err != nil {
			return nil, err
		}
	}
	return bg, nil
}

func anchorCoordinates(emb *embed.Embedding) []models.Coordinate {
	coords := make([]models.Coordinate, len(emb.Anchors))
	for i, a := range emb.Anchors {
		coords[i] = models.Coordinate{
			Kind:       models.KindAnchor,
			Identifier: a.Factor,
			X:          a.Point.X,
			Y:          a.Point.Y,
		}
	}
	return coords
}

func pointCoordinates(kind models.CoordinateKind, points map[string]embed.Point) []models.Coordinate {
	ids := make([]string, 0, len(points))
	for id := range points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	coords := make([]models.Coordinate, len(ids))
	for i, id := range ids {
		p := points[id]
		coords[i] = models.Coordinate{Kind: kind, Identifier: id, X: p.X, Y: p.Y}
	}
	return coords
}

func scoreVectors(scores *embed.ScoreMatrix) []storage.ScoreVector {
	vectors := make([]storage.ScoreVector, scores.N())
	for j, name := range scores.Samples {
		col := scores.Column(j)
		vec := make([]float32, len(col))
		for i, v := range col {
			vec[i] = float32(v)
		}
		vectors[j] = storage.ScoreVector{Sample: name, Scores: pgvector.NewVector(vec)}
	}
	return vectors
}

func summaryFromRecord(rec *storage.EmbeddingRecord) models.EmbeddingSummary {
	return models.EmbeddingSummary{
		ID:        rec.ID.String(),
		Name:      rec.Name,
		Factors:   rec.Factors,
		Samples:   rec.Samples,
		Features:  rec.Features,
		Params:    rec.Params,
		CreatedAt: rec.CreatedAt,
	}
}

func wireParams(p embed.Params) models.EmbeddingParams {
	return models.EmbeddingParams{
		NPull:    p.NPull,
		AlphaExp: p.Alpha,
		SNNExp:   p.SNNExp,
		Distance: string(p.Distance),
		Reducer:  p.Reducer,
		Seed:     p.Seed,
	}
}

func wireDegeneracies(ds []embed.Degeneracy) []models.Degeneracy {
	if len(ds) == 0 {
		return nil
	}
	out := make([]models.Degeneracy, len(ds))
	for i, d := range ds {
		out[i] = models.Degeneracy{Kind: string(d.Kind), ID: d.ID}
	}
	return out
}
