package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/reqtrace/reqtrace/internal/facts"
	"github.com/reqtrace/reqtrace/internal/status"
)

// Options controls report assembly.
type Options struct {
	// Project is a free-form label embedded in the report.
	Project string

	// Locale selects the collation used to order requirement IDs.
	// Numeric collation is always enabled so "req.10" sorts after "req.2".
	Locale string

	// CreationDate is stamped into the report. The zero value means "now";
	// pass a fixed date for reproducible output.
	CreationDate time.Time
}

// Build derives all status relations from the snapshot and assembles the
// report context. A cyclic hierarchy aborts before anything is assembled.
func Build(snap *facts.Snapshot, unrelated *facts.Unrelated, opts Options) (*Context, error) {
	result, err := status.Compute(snap)
	if err != nil {
		return nil, err
	}

	b := &builder{
		snap:     snap,
		result:   result,
		collator: newCollator(opts.Locale),
	}
	b.index()

	creation := opts.CreationDate
	if creation.IsZero() {
		creation = time.Now().UTC()
	}

	tests, warnings := b.testStatistics()
	ctx := &Context{
		Project:      opts.Project,
		CreationDate: creation.UTC(),
		Overview:     b.overview(),
		Requirements: b.requirements(),
		Tests:        tests,
		Reviews:      b.reviews(),
		Validation:   b.validation(),
		Unrelated:    buildUnrelated(unrelated),
		Warnings:     warnings,

		TraceCriteria:              traceCriteria,
		TestCoverageCriteria:       testCoverageCriteria,
		TestPassedCoverageCriteria: testPassedCoverageCriteria,
	}
	return ctx, nil
}

func newCollator(locale string) *collate.Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return collate.New(tag, collate.Numeric)
}

type builder struct {
	snap     *facts.Snapshot
	result   *status.Result
	collator *collate.Collator

	tracesByReq    map[string][]facts.Trace
	coverageByReq  map[string][]facts.CoverageLink
	verifiedByReq  map[string][]facts.ManualVerification
	outcomes       map[string]facts.Test
	coverageByTest map[string][]facts.CoverageLink
}

func factKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func testKey(runName string, runDate time.Time, testName string) string {
	return factKey(runName, runDate.UTC().Format(facts.DateFormat), testName)
}

func (b *builder) index() {
	b.tracesByReq = make(map[string][]facts.Trace, len(b.snap.Traces))
	for _, trace := range b.snap.Traces {
		b.tracesByReq[trace.ReqID] = append(b.tracesByReq[trace.ReqID], trace)
	}

	b.coverageByReq = make(map[string][]facts.CoverageLink, len(b.snap.Coverage))
	b.coverageByTest = make(map[string][]facts.CoverageLink, len(b.snap.Coverage))
	for _, link := range b.snap.Coverage {
		b.coverageByReq[link.ReqID] = append(b.coverageByReq[link.ReqID], link)
		key := testKey(link.RunName, link.RunDate, link.TestName)
		b.coverageByTest[key] = append(b.coverageByTest[key], link)
	}

	b.verifiedByReq = make(map[string][]facts.ManualVerification, len(b.snap.Verifications))
	for _, v := range b.snap.Verifications {
		b.verifiedByReq[v.ReqID] = append(b.verifiedByReq[v.ReqID], v)
	}

	b.outcomes = make(map[string]facts.Test, len(b.snap.Tests))
	for _, test := range b.snap.Tests {
		b.outcomes[testKey(test.RunName, test.RunDate, test.Name)] = test
	}
}

// linkFailed reports whether the coverage link's test did not pass. A link
// whose test is unknown or never finalized counts as failed.
func (b *builder) linkFailed(link facts.CoverageLink) bool {
	test, known := b.outcomes[testKey(link.RunName, link.RunDate, link.TestName)]
	return !known || !test.State.Passed()
}

func ratio(count, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(count) / float64(total)
}

func (b *builder) sortIDs(ids []string) {
	b.collator.SortStrings(ids)
}

func (b *builder) overview() RequirementsOverview {
	closure := b.result.Closure()
	o := RequirementsOverview{ReqCnt: closure.Len()}

	manualCnt, verifiedManualCnt := 0, 0
	for i := 0; i < closure.Len(); i++ {
		if b.result.Traced(i) {
			o.TracedCnt++
		}
		if b.result.Covered(i) {
			o.CoveredCnt++
		}
		if b.result.PassedCovered(i) {
			o.PassedCnt++
		}
		if b.result.Manual(i) {
			manualCnt++
			if b.result.Verified(i) {
				verifiedManualCnt++
			}
		}
	}

	o.TracedRatio = ratio(o.TracedCnt, o.ReqCnt)
	o.CoveredRatio = ratio(o.CoveredCnt, o.ReqCnt)
	o.PassedRatio = ratio(o.PassedCnt, o.ReqCnt)
	if manualCnt > 0 {
		o.VerifiedCnt = &verifiedManualCnt
		o.VerifiedRatio = ratio(verifiedManualCnt, manualCnt)
	}
	return o
}

func (b *builder) requirements() []RequirementInfo {
	closure := b.result.Closure()
	ids := make([]string, closure.Len())
	for i := range ids {
		ids[i] = closure.ID(i)
	}
	b.sortIDs(ids)

	infos := make([]RequirementInfo, 0, len(ids))
	byID := make(map[string]facts.Requirement, len(b.snap.Requirements))
	for _, req := range b.snap.Requirements {
		byID[req.ID] = req
	}

	for _, id := range ids {
		i, _ := closure.Index(id)
		req := byID[id]

		info := RequirementInfo{
			ID:         id,
			Origin:     req.Origin,
			Title:      req.Title,
			Annotation: annotationString(req.Annotation),
			Parents:    b.relatedIDs(closure.Parents(i)),
			Children:   b.relatedIDs(closure.Children(i)),
			Deprecated: b.result.Deprecated(i),
			Manual:     b.result.Manual(i),
			Valid:      !b.result.Invalid(i),

			TraceInfo:        b.traceInfo(i, id),
			TestCoverageInfo: b.coverageInfo(i, id),
			LeafStatistics:   b.leafStatistics(i),
			VerifiedInfo:     b.verifiedInfo(id),
		}
		infos = append(infos, info)
	}
	return infos
}

func annotationString(a facts.Annotation) string {
	if a == facts.AnnotationNone {
		return ""
	}
	return a.String()
}

func (b *builder) relatedIDs(indexes []int) []string {
	if len(indexes) == 0 {
		return nil
	}
	closure := b.result.Closure()
	ids := make([]string, len(indexes))
	for j, idx := range indexes {
		ids[j] = closure.ID(idx)
	}
	b.sortIDs(ids)
	return ids
}

func (b *builder) traceInfo(i int, id string) TraceInfo {
	info := TraceInfo{
		Traced:      b.result.Traced(i),
		FullyTraced: b.result.FullyTraced(i),
	}

	for _, trace := range b.tracesByReq[id] {
		info.DirectTraces = append(info.DirectTraces, TraceLocation{
			Filepath: trace.Filepath,
			Line:     trace.Line,
		})
	}
	sort.Slice(info.DirectTraces, func(x, y int) bool {
		a, c := info.DirectTraces[x], info.DirectTraces[y]
		if a.Filepath != c.Filepath {
			return a.Filepath < c.Filepath
		}
		return a.Line < c.Line
	})

	closure := b.result.Closure()
	for _, d := range closure.Descendants(i) {
		descID := closure.ID(d)
		for _, trace := range b.tracesByReq[descID] {
			info.IndirectTraces = append(info.IndirectTraces, IndirectTrace{
				TracedID: descID,
				Filepath: trace.Filepath,
				Line:     trace.Line,
			})
		}
	}
	sort.Slice(info.IndirectTraces, func(x, y int) bool {
		a, c := info.IndirectTraces[x], info.IndirectTraces[y]
		if a.Filepath != c.Filepath {
			return a.Filepath < c.Filepath
		}
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		return a.TracedID < c.TracedID
	})

	return info
}

func (b *builder) coverageInfo(i int, id string) TestCoverageInfo {
	info := TestCoverageInfo{
		Covered:      b.result.Covered(i),
		Passed:       b.result.PassedCovered(i),
		FullyCovered: b.result.FullyCovered(i),
	}

	for _, link := range b.coverageByReq[id] {
		info.DirectCoverage = append(info.DirectCoverage, coverageRef(link))
		if b.linkFailed(link) {
			info.FailedCoverage = append(info.FailedCoverage, failedRef(link, ""))
		}
	}

	closure := b.result.Closure()
	for _, d := range closure.Descendants(i) {
		descID := closure.ID(d)
		for _, link := range b.coverageByReq[descID] {
			info.IndirectCoverage = append(info.IndirectCoverage, indirectRef(link, descID))
			if b.linkFailed(link) {
				info.FailedCoverage = append(info.FailedCoverage, failedRef(link, descID))
			}
		}
	}

	sort.Slice(info.DirectCoverage, func(x, y int) bool {
		return coverageLess(info.DirectCoverage[x], info.DirectCoverage[y], "", "")
	})
	sort.Slice(info.IndirectCoverage, func(x, y int) bool {
		a, c := info.IndirectCoverage[x], info.IndirectCoverage[y]
		return coverageLess(
			CoverageRef{a.TestRunName, a.TestRunDate, a.TestName, a.Filepath, a.Line},
			CoverageRef{c.TestRunName, c.TestRunDate, c.TestName, c.Filepath, c.Line},
			a.CoveredID, c.CoveredID,
		)
	})
	sort.Slice(info.FailedCoverage, func(x, y int) bool {
		a, c := info.FailedCoverage[x], info.FailedCoverage[y]
		return coverageLess(
			CoverageRef{a.TestRunName, a.TestRunDate, a.TestName, a.Filepath, a.Line},
			CoverageRef{c.TestRunName, c.TestRunDate, c.TestName, c.Filepath, c.Line},
			a.CoveredID, c.CoveredID,
		)
	})

	return info
}

func coverageRef(link facts.CoverageLink) CoverageRef {
	return CoverageRef{
		TestRunName: link.RunName,
		TestRunDate: link.RunDate.UTC(),
		TestName:    link.TestName,
		Filepath:    link.Filepath,
		Line:        link.Line,
	}
}

func indirectRef(link facts.CoverageLink, coveredID string) IndirectCoverageRef {
	ref := coverageRef(link)
	return IndirectCoverageRef{
		CoveredID:   coveredID,
		TestRunName: ref.TestRunName,
		TestRunDate: ref.TestRunDate,
		TestName:    ref.TestName,
		Filepath:    ref.Filepath,
		Line:        ref.Line,
	}
}

func failedRef(link facts.CoverageLink, coveredID string) FailedCoverageRef {
	ref := coverageRef(link)
	return FailedCoverageRef{
		CoveredID:   coveredID,
		TestRunName: ref.TestRunName,
		TestRunDate: ref.TestRunDate,
		TestName:    ref.TestName,
		Filepath:    ref.Filepath,
		Line:        ref.Line,
	}
}

func coverageLess(a, c CoverageRef, aID, cID string) bool {
	if a.TestRunName != c.TestRunName {
		return a.TestRunName < c.TestRunName
	}
	if !a.TestRunDate.Equal(c.TestRunDate) {
		return a.TestRunDate.Before(c.TestRunDate)
	}
	if a.TestName != c.TestName {
		return a.TestName < c.TestName
	}
	if a.Filepath != c.Filepath {
		return a.Filepath < c.Filepath
	}
	if a.Line != c.Line {
		return a.Line < c.Line
	}
	return aID < cID
}

func (b *builder) leafStatistics(i int) LeafStatistics {
	leaves := b.result.Closure().LeafDescendants(i)
	stats := LeafStatistics{LeafCnt: len(leaves)}
	for _, leaf := range leaves {
		if b.result.DirectlyTraced(leaf) {
			stats.TracedLeafCnt++
		}
		if b.result.DirectlyCovered(leaf) {
			stats.CoveredLeafCnt++
		}
		if b.result.PassedCovered(leaf) {
			stats.PassedCoveredLeafCnt++
		}
	}
	stats.TracedLeafRatio = ratio(stats.TracedLeafCnt, stats.LeafCnt)
	stats.CoveredLeafRatio = ratio(stats.CoveredLeafCnt, stats.LeafCnt)
	stats.PassedCoveredLeafRatio = ratio(stats.PassedCoveredLeafCnt, stats.LeafCnt)
	return stats
}

func (b *builder) verifiedInfo(id string) []VerifiedInfo {
	verifications := b.verifiedByReq[id]
	if len(verifications) == 0 {
		return nil
	}
	out := make([]VerifiedInfo, len(verifications))
	for j, v := range verifications {
		out[j] = VerifiedInfo{
			ReviewName: v.ReviewName,
			ReviewDate: v.ReviewDate.UTC(),
			Comment:    v.Comment,
		}
	}
	sort.Slice(out, func(x, y int) bool {
		if out[x].ReviewName != out[y].ReviewName {
			return out[x].ReviewName < out[y].ReviewName
		}
		return out[x].ReviewDate.Before(out[y].ReviewDate)
	})
	return out
}

func (b *builder) testStatistics() (TestStatistics, []string) {
	runs := append([]facts.TestRun(nil), b.snap.TestRuns...)
	sort.Slice(runs, func(x, y int) bool {
		if runs[x].Name != runs[y].Name {
			return runs[x].Name < runs[y].Name
		}
		return runs[x].Date.Before(runs[y].Date)
	})

	var stats TestStatistics
	var warnings []string
	var global TestsOverview

	for _, run := range runs {
		info := b.testRunInfo(run)
		if info.Overview.RanCnt < info.Overview.TestCnt {
			warnings = append(warnings, fmt.Sprintf(
				"test run %q (%s): %d of %d expected tests reported in",
				run.Name, run.Date.UTC().Format(facts.DateFormat),
				info.Overview.RanCnt, info.Overview.TestCnt,
			))
		}
		global.TestCnt += info.Overview.TestCnt
		global.RanCnt += info.Overview.RanCnt
		global.PassedCnt += info.Overview.PassedCnt
		global.FailedCnt += info.Overview.FailedCnt
		global.SkippedCnt += info.Overview.SkippedCnt
		stats.TestRuns = append(stats.TestRuns, info)
	}

	global.RanRatio = ratio(global.RanCnt, global.TestCnt)
	global.PassedRatio = ratio(global.PassedCnt, global.TestCnt)
	global.FailedRatio = ratio(global.FailedCnt, global.TestCnt)
	global.SkippedRatio = ratio(global.SkippedCnt, global.TestCnt)
	stats.Overview = global
	return stats, warnings
}

func (b *builder) testRunInfo(run facts.TestRun) TestRunInfo {
	info := TestRunInfo{
		Name: run.Name,
		Date: run.Date.UTC(),
		Logs: run.Logs,
	}

	var tests []facts.Test
	for _, test := range b.snap.Tests {
		if test.RunName == run.Name && test.RunDate.Equal(run.Date) {
			tests = append(tests, test)
		}
	}
	sort.Slice(tests, func(x, y int) bool {
		if tests[x].Name != tests[y].Name {
			return tests[x].Name < tests[y].Name
		}
		if tests[x].Filepath != tests[y].Filepath {
			return tests[x].Filepath < tests[y].Filepath
		}
		return tests[x].Line < tests[y].Line
	})

	overview := TestsOverview{TestCnt: run.ExpectedTestCount}
	for _, test := range tests {
		switch test.State {
		case facts.StatePassed:
			overview.RanCnt++
			overview.PassedCnt++
		case facts.StateFailed:
			overview.RanCnt++
			overview.FailedCnt++
		case facts.StateSkipped:
			overview.RanCnt++
			overview.SkippedCnt++
		}

		covers := b.coveredRequirements(test)
		info.Tests = append(info.Tests, TestInfo{
			Name:       test.Name,
			Filepath:   test.Filepath,
			Line:       test.Line,
			State:      test.State.String(),
			SkipReason: test.SkipReason,
			Covers:     covers,
		})
	}

	overview.RanRatio = ratio(overview.RanCnt, overview.TestCnt)
	overview.PassedRatio = ratio(overview.PassedCnt, overview.TestCnt)
	overview.FailedRatio = ratio(overview.FailedCnt, overview.TestCnt)
	overview.SkippedRatio = ratio(overview.SkippedCnt, overview.TestCnt)
	info.Overview = overview
	return info
}

func (b *builder) coveredRequirements(test facts.Test) []string {
	links := b.coverageByTest[testKey(test.RunName, test.RunDate, test.Name)]
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(links))
	var ids []string
	for _, link := range links {
		if !seen[link.ReqID] {
			seen[link.ReqID] = true
			ids = append(ids, link.ReqID)
		}
	}
	b.sortIDs(ids)
	return ids
}

func (b *builder) reviews() []ReviewInfo {
	reviews := append([]facts.Review(nil), b.snap.Reviews...)
	sort.Slice(reviews, func(x, y int) bool {
		if reviews[x].Name != reviews[y].Name {
			return reviews[x].Name < reviews[y].Name
		}
		return reviews[x].Date.Before(reviews[y].Date)
	})

	out := make([]ReviewInfo, 0, len(reviews))
	for _, review := range reviews {
		info := ReviewInfo{
			Name:         review.Name,
			Date:         review.Date.UTC(),
			Reviewer:     review.Reviewer,
			Comment:      review.Comment,
			VerifiedReqs: []VerifiedReq{},
		}
		for _, v := range b.snap.Verifications {
			if v.ReviewName == review.Name && v.ReviewDate.Equal(review.Date) {
				info.VerifiedReqs = append(info.VerifiedReqs, VerifiedReq{
					ID:      v.ReqID,
					Comment: v.Comment,
				})
			}
		}
		sort.Slice(info.VerifiedReqs, func(x, y int) bool {
			return info.VerifiedReqs[x].ID < info.VerifiedReqs[y].ID
		})
		out = append(out, info)
	}
	return out
}

func (b *builder) validation() ValidationInfo {
	invalid := b.result.InvalidIDs()
	b.sortIDs(invalid)
	if invalid == nil {
		invalid = []string{}
	}
	return ValidationInfo{
		IsValid:            len(invalid) == 0,
		ValidationCriteria: validationCriteria,
		InvalidReqs:        invalid,
	}
}

func buildUnrelated(unrelated *facts.Unrelated) UnrelatedInfo {
	info := UnrelatedInfo{
		Traces:        []UnrelatedTrace{},
		Coverage:      []UnrelatedCoverage{},
		Verifications: []UnrelatedVerification{},
	}
	if unrelated == nil {
		return info
	}
	for _, trace := range unrelated.Traces {
		info.Traces = append(info.Traces, UnrelatedTrace{
			ReqID:    trace.ReqID,
			Filepath: trace.Filepath,
			Line:     trace.Line,
		})
	}
	for _, link := range unrelated.Coverage {
		info.Coverage = append(info.Coverage, UnrelatedCoverage{
			ReqID:       link.ReqID,
			TestRunName: link.RunName,
			TestRunDate: link.RunDate.UTC(),
			TestName:    link.TestName,
			Filepath:    link.Filepath,
			Line:        link.Line,
		})
	}
	for _, v := range unrelated.Verifications {
		info.Verifications = append(info.Verifications, UnrelatedVerification{
			ReqID:      v.ReqID,
			ReviewName: v.ReviewName,
			ReviewDate: v.ReviewDate.UTC(),
		})
	}
	return info
}
