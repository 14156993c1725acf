package service_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/github"
	"basegraph.app/skillflow/internal/model"
	"basegraph.app/skillflow/internal/service"
	"basegraph.app/skillflow/internal/store"
	"basegraph.app/skillflow/internal/submission"
)

const summarizerSkill = `---
name: summarizer
description: Summarize long documents into short briefs
---

# Summarizer

Split the document into sections and summarize each one before merging.
`

const summarizerReadme = "# Summarizer\n\nCommunity submission.\n"

func skillFiles(dir, skill, readme string) []model.PRFile {
	return []model.PRFile{
		{Path: dir + "/skill.md", Status: "added", Content: skill},
		{Path: dir + "/README.md", Status: "added", Content: readme},
	}
}

var _ = Describe("PRProcessor", func() {
	var (
		ctx    context.Context
		stores *store.Stores
		tx     service.TxRunner
		files  *fakeFiles
		merger *fakeMerger
		sink   *recordingSink
		stats  *service.ProcessingStats
		cfg    service.PRProcessorConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		d, s := openStores(ctx)
		stores = s
		tx = service.NewTxRunner(d)
		files = &fakeFiles{files: skillFiles("text/summarizer", summarizerSkill, summarizerReadme)}
		merger = &fakeMerger{}
		sink = newRecordingSink()
		stats = service.NewProcessingStats()
		cfg = service.PRProcessorConfig{AutoMergeEnabled: true}
	})

	newProcessor := func() *service.PRProcessor {
		validator := submission.NewValidator(stores.Content(), cfg.AutoMergeLabel)
		return service.NewPRProcessor(tx, stores.PullRequests(), files, merger, validator, sink, stats, cfg)
	}

	status := func(number int) model.PRStatus {
		GinkgoHelper()
		pr, err := stores.PullRequests().Get(ctx, number)
		Expect(err).NotTo(HaveOccurred())
		return pr.ProcessingStatus
	}

	It("merges a labeled submission and indexes its content", func() {
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 21, "abc123", "auto-merge"))

		Expect(newProcessor().Process(ctx, ev)).To(Succeed())

		Expect(merger.calls).To(Equal(1))
		Expect(files.refs).To(ConsistOf("abc123"))
		Expect(status(21)).To(Equal(model.PRStatusMerged))

		hash := submission.ContentHash(summarizerSkill, summarizerReadme)
		indexed, err := stores.Content().Contains(ctx, hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(indexed).To(BeTrue())

		pr, err := stores.PullRequests().Get(ctx, 21)
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.ContentHashes).To(ConsistOf(hash))

		Expect(sink.Comments(21)).To(ConsistOf(ContainSubstring("PR Validated and Merged")))
		Expect(stats.Snapshot().PRsProcessed).To(BeEquivalentTo(1))
	})

	It("rejects a later submission of the same content", func() {
		proc := newProcessor()
		Expect(proc.Process(ctx, storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 21, "abc123", "auto-merge")))).To(Succeed())
		Expect(proc.Process(ctx, storedEvent(2, "pull_request", model.CategorySkillSubmission, prPayload("opened", 22, "def456", "auto-merge")))).To(Succeed())

		Expect(merger.calls).To(Equal(1))
		Expect(status(22)).To(Equal(model.PRStatusRejected))

		pr, err := stores.PullRequests().Get(ctx, 22)
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.ValidationErrors).To(ConsistOf(HavePrefix("Duplicate skill found: text/summarizer")))
		Expect(sink.Comments(22)).To(ConsistOf(ContainSubstring("PR Validation Failed")))
	})

	It("approves a valid submission without the auto-merge label", func() {
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 23, "abc123"))

		Expect(newProcessor().Process(ctx, ev)).To(Succeed())

		Expect(merger.calls).To(BeZero())
		Expect(status(23)).To(Equal(model.PRStatusApproved))
		Expect(sink.Comments(23)).To(ConsistOf(And(
			ContainSubstring("PR Validated"),
			ContainSubstring("add the `auto-merge` label"),
		)))

		indexed, err := stores.Content().Contains(ctx, submission.ContentHash(summarizerSkill, summarizerReadme))
		Expect(err).NotTo(HaveOccurred())
		Expect(indexed).To(BeFalse())
	})

	It("does not merge when auto-merge is disabled", func() {
		cfg.AutoMergeEnabled = false
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 24, "abc123", "auto-merge"))

		Expect(newProcessor().Process(ctx, ev)).To(Succeed())

		Expect(merger.calls).To(BeZero())
		Expect(status(24)).To(Equal(model.PRStatusApproved))
	})

	It("approves and reports when GitHub refuses the merge", func() {
		merger.err = fmt.Errorf("merging #25: %w", github.ErrNotMergeable)
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 25, "abc123", "auto-merge"))

		Expect(newProcessor().Process(ctx, ev)).To(Succeed())

		Expect(status(25)).To(Equal(model.PRStatusApproved))
		Expect(sink.Comments(25)).To(ConsistOf(ContainSubstring("Auto-merge failed")))
	})

	It("retries a merge that failed for another reason", func() {
		merger.err = errors.New("connection reset")
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 26, "abc123", "auto-merge"))
		proc := newProcessor()

		err := proc.Process(ctx, ev)
		Expect(domain.IsKind(err, domain.KindTransient)).To(BeTrue())
		Expect(status(26)).To(Equal(model.PRStatusValidated))
		Expect(sink.Comments(26)).To(BeEmpty())

		merger.err = nil
		Expect(proc.Process(ctx, ev)).To(Succeed())
		Expect(status(26)).To(Equal(model.PRStatusMerged))
		Expect(sink.Comments(26)).To(HaveLen(1))
	})

	It("records a merge that landed before its bookkeeping failed", func() {
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 30, "abc123", "auto-merge"))
		tx = &flakyTx{inner: tx, n: 1}
		proc := newProcessor()

		Expect(proc.Process(ctx, ev)).NotTo(Succeed())
		Expect(merger.calls).To(Equal(1))
		Expect(status(30)).To(Equal(model.PRStatusValidated))
		Expect(sink.Comments(30)).To(BeEmpty())

		By("retrying once GitHub reports the pull request as merged")
		merger.err = fmt.Errorf("merging #30: %w", github.ErrNotMergeable)
		merger.merged = true
		Expect(proc.Process(ctx, ev)).To(Succeed())

		Expect(status(30)).To(Equal(model.PRStatusMerged))
		indexed, err := stores.Content().Contains(ctx, submission.ContentHash(summarizerSkill, summarizerReadme))
		Expect(err).NotTo(HaveOccurred())
		Expect(indexed).To(BeTrue())
		Expect(sink.Comments(30)).To(ConsistOf(ContainSubstring("PR Validated and Merged")))
	})

	It("retries when the merge state cannot be read", func() {
		merger.err = fmt.Errorf("merging #31: %w", github.ErrNotMergeable)
		merger.checkErr = errors.New("connection reset")
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 31, "abc123", "auto-merge"))

		err := newProcessor().Process(ctx, ev)
		Expect(domain.IsKind(err, domain.KindTransient)).To(BeTrue())
		Expect(status(31)).To(Equal(model.PRStatusValidated))
	})

	It("rejects an incomplete submission", func() {
		files.files = []model.PRFile{{Path: "text/summarizer/skill.md", Status: "added", Content: summarizerSkill}}
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 27, "abc123"))

		Expect(newProcessor().Process(ctx, ev)).To(Succeed())

		pr, err := stores.PullRequests().Get(ctx, 27)
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.ProcessingStatus).To(Equal(model.PRStatusRejected))
		Expect(pr.ValidationErrors).To(ContainElement("text/summarizer: README.md is missing"))
	})

	It("revalidates a rejected pull request after a new push", func() {
		files.files = []model.PRFile{{Path: "text/summarizer/skill.md", Status: "added", Content: summarizerSkill}}
		proc := newProcessor()
		Expect(proc.Process(ctx, storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 28, "abc123")))).To(Succeed())
		Expect(status(28)).To(Equal(model.PRStatusRejected))

		// an edit alone does not reopen validation
		Expect(proc.Process(ctx, storedEvent(2, "pull_request", model.CategorySkillSubmission, prPayload("edited", 28, "abc123")))).To(Succeed())
		Expect(sink.Comments(28)).To(HaveLen(1))

		files.files = skillFiles("text/summarizer", summarizerSkill, summarizerReadme)
		Expect(proc.Process(ctx, storedEvent(3, "pull_request", model.CategorySkillSubmission, prPayload("synchronize", 28, "def456")))).To(Succeed())

		Expect(status(28)).To(Equal(model.PRStatusApproved))
		Expect(files.refs).To(Equal([]string{"abc123", "def456"}))
		Expect(sink.Comments(28)).To(HaveLen(2))
	})

	It("leaves merged pull requests alone", func() {
		proc := newProcessor()
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 29, "abc123", "auto-merge"))
		Expect(proc.Process(ctx, ev)).To(Succeed())
		Expect(proc.Process(ctx, storedEvent(2, "pull_request", model.CategorySkillSubmission, prPayload("synchronize", 29, "abc123", "auto-merge")))).To(Succeed())

		Expect(merger.calls).To(Equal(1))
		Expect(sink.Comments(29)).To(HaveLen(1))
	})

	It("records reviews without validating", func() {
		payload := prPayload("submitted", 30, "abc123")
		payload["review"] = map[string]any{"state": "approved", "user": map[string]any{"login": "carol"}}

		Expect(newProcessor().Process(ctx, storedEvent(1, "pull_request_review", model.CategorySkillSubmission, payload))).To(Succeed())

		Expect(files.refs).To(BeEmpty())
		_, err := stores.PullRequests().Get(ctx, 30)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("rejects and reports when file fetching is abandoned", func() {
		files.err = errors.New("github unavailable")
		ev := storedEvent(1, "pull_request", model.CategorySkillSubmission, prPayload("opened", 31, "abc123"))
		proc := newProcessor()

		err := proc.Process(ctx, ev)
		Expect(domain.KindOf(err).Retryable()).To(BeTrue())
		Expect(status(31)).To(Equal(model.PRStatusPending))

		proc.Abandon(ctx, ev, err)

		pr, err := stores.PullRequests().Get(ctx, 31)
		Expect(err).NotTo(HaveOccurred())
		Expect(pr.ProcessingStatus).To(Equal(model.PRStatusRejected))
		Expect(pr.ValidationErrors).To(ConsistOf(ContainSubstring("github unavailable")))
		Expect(sink.Comments(31)).To(ConsistOf(ContainSubstring("Processing Error")))
		Expect(stats.Snapshot().Errors).To(BeEquivalentTo(1))
	})
})
