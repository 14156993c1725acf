package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/http/handler/webhook"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/service"
	ghevent "basegraph.app/skillflow/internal/webhook"
	"basegraph.app/skillflow/internal/worker"
)

const secret = "s3cret"

type fakeIngest struct {
	result *service.IngestResult
	err    error
	got    []model.InboundEvent
}

func (f *fakeIngest) Ingest(_ context.Context, ev model.InboundEvent) (*service.IngestResult, error) {
	f.got = append(f.got, ev)
	return f.result, f.err
}

type fakePool struct{}

func (fakePool) Stats(context.Context) worker.Stats {
	return worker.Stats{Workers: 2, QueueDepth: 3}
}

type fakeReconciler struct {
	enqueued, skipped int
	err               error
}

func (f fakeReconciler) ReconcileOnce(context.Context) (int, int, error) {
	return f.enqueued, f.skipped, f.err
}

type fakeEvents struct {
	unresolved int
	stats      model.EventStats
	err        error
}

func (f fakeEvents) CountUnresolved(context.Context, int) (int, error) { return f.unresolved, f.err }
func (f fakeEvents) Stats(context.Context) (model.EventStats, error)  { return f.stats, f.err }

type fakeProcessing struct{}

func (fakeProcessing) Snapshot() service.StatsSnapshot {
	return service.StatsSnapshot{IssuesProcessed: 4, PRsProcessed: 1}
}

var _ = Describe("GitHubWebhookHandler", func() {
	var (
		router     *gin.Engine
		ingest     *fakeIngest
		events     fakeEvents
		reconciler fakeReconciler
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		ingest = &fakeIngest{result: &service.IngestResult{Event: &model.StoredEvent{ID: 42}, Enqueued: true}}
		processed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		events = fakeEvents{
			unresolved: 5,
			stats: model.EventStats{
				ByCategory:      map[model.Category]int{model.CategoryRepoRequest: 2},
				ByStatus:        map[model.EventStatus]int{model.EventStatusCompleted: 2},
				LastProcessedAt: &processed,
				Total:           2,
			},
		}
		reconciler = fakeReconciler{enqueued: 3, skipped: 1}
	})

	JustBeforeEach(func() {
		h := webhook.NewGitHubWebhookHandler(
			webhook.Config{Secret: secret, MaxRetries: 3},
			ingest, fakePool{}, reconciler, events, fakeProcessing{},
		)
		router = gin.New()
		router.POST("/webhook", h.HandleEvent)
		router.GET("/webhook/health", h.Health)
		router.GET("/webhook/pending", h.Pending)
		router.POST("/webhook/process", h.Process)
		router.GET("/webhook/stats", h.Stats)
	})

	deliver := func(event string, body []byte, signature string) (*httptest.ResponseRecorder, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(ghevent.HeaderEvent, event)
		req.Header.Set(ghevent.HeaderDelivery, "d-1")
		if signature != "" {
			req.Header.Set(ghevent.HeaderSignature, signature)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return w, resp
	}

	issueBody := []byte(`{"action":"opened","issue":{"number":7},"repository":{"full_name":"acme/skills"}}`)

	It("accepts a signed delivery", func() {
		w, resp := deliver("issues", issueBody, ghevent.SignatureHeader(issueBody, secret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("status", "accepted"))
		Expect(resp).To(HaveKeyWithValue("event_id", BeEquivalentTo(42)))
		Expect(ingest.got).To(HaveLen(1))
		Expect(ingest.got[0].DeliveryID).To(Equal("d-1"))
		Expect(ingest.got[0].RepoName).To(Equal("acme/skills"))
	})

	It("rejects a bad signature before parsing", func() {
		w, _ := deliver("issues", issueBody, ghevent.SignatureHeader(issueBody, "other"))

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(ingest.got).To(BeEmpty())
	})

	It("rejects a missing signature", func() {
		w, _ := deliver("issues", issueBody, "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects a payload without a repository", func() {
		body := []byte(`{"action":"opened"}`)
		w, resp := deliver("issues", body, ghevent.SignatureHeader(body, secret))

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(resp["error"]).To(ContainSubstring("repository"))
		Expect(ingest.got).To(BeEmpty())
	})

	It("answers a ping with pong after recording it", func() {
		body := []byte(`{"zen":"Keep it simple.","repository":{"full_name":"acme/skills"}}`)
		w, resp := deliver("ping", body, ghevent.SignatureHeader(body, secret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("status", "pong"))
		Expect(ingest.got).To(HaveLen(1))
	})

	It("reports duplicates as success", func() {
		ingest.result = &service.IngestResult{Event: &model.StoredEvent{ID: 42}, Duplicate: true}
		w, resp := deliver("issues", issueBody, ghevent.SignatureHeader(issueBody, secret))

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("status", "duplicate"))
	})

	It("returns 503 when the queue is full", func() {
		ingest.result = &service.IngestResult{Event: &model.StoredEvent{ID: 42}}
		w, _ := deliver("issues", issueBody, ghevent.SignatureHeader(issueBody, secret))
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("returns 500 when the store fails", func() {
		ingest.result = nil
		ingest.err = domain.FatalStore("appending event", errors.New("disk I/O error"))
		w, _ := deliver("issues", issueBody, ghevent.SignatureHeader(issueBody, secret))
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})

	get := func(method, path string) (*httptest.ResponseRecorder, map[string]any) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return w, resp
	}

	It("counts pending events", func() {
		w, resp := get(http.MethodGet, "/webhook/pending")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("pending", BeEquivalentTo(5)))
	})

	It("enqueues pending events on demand", func() {
		w, resp := get(http.MethodPost, "/webhook/process")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("enqueued", BeEquivalentTo(3)))
		Expect(resp).To(HaveKeyWithValue("skipped", BeEquivalentTo(1)))
	})

	It("reports health with queue and store stats nested under stats", func() {
		w, resp := get(http.MethodGet, "/webhook/health")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("status", "healthy"))
		Expect(resp).To(HaveKeyWithValue("service", "skillflow"))
		Expect(resp).To(HaveLen(3))
		Expect(resp).To(HaveKeyWithValue("stats", SatisfyAll(
			HaveKeyWithValue("queue", HaveKeyWithValue("queue_depth", BeEquivalentTo(3))),
			HaveKeyWithValue("store", HaveKeyWithValue("total", BeEquivalentTo(2))),
			HaveKey("processing"),
		)))
	})

	It("reports per-category stats", func() {
		w, resp := get(http.MethodGet, "/webhook/stats")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(resp).To(HaveKeyWithValue("by_category", HaveKeyWithValue("repo_request", BeEquivalentTo(2))))
		Expect(resp).To(HaveKeyWithValue("last_processed_at", "2026-01-02T03:04:05Z"))
	})

	Context("when the store is unavailable", func() {
		BeforeEach(func() {
			events.err = errors.New("connection refused")
			reconciler.err = errors.New("connection refused")
		})

		It("fails the pending count", func() {
			w, _ := get(http.MethodGet, "/webhook/pending")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})

		It("fails on-demand processing", func() {
			w, _ := get(http.MethodPost, "/webhook/process")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})

		It("reports degraded health", func() {
			_, resp := get(http.MethodGet, "/webhook/health")
			Expect(resp).To(HaveKeyWithValue("status", "degraded"))
			Expect(resp).To(HaveKeyWithValue("stats", HaveKey("queue")))
			Expect(resp).NotTo(HaveKey("queue"))
		})
	})
})
