package tracking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/delegatewatch/delegatewatch/pkg/models"
)

// FormatStatus renders a report as a fixed-layout text block. Field
// order and section headers are stable so the output can be snapshot
// tested; callers should not parse it.
func FormatStatus(r *models.Report) string {
	s := r.Stats
	var b strings.Builder

	verdict := "✅ MEETS THRESHOLD"
	if !s.MeetsThreshold {
		verdict = "❌ BELOW THRESHOLD"
	}

	fmt.Fprintf(&b, "📊 Delegation Status — %s\n", r.GeneratedAt.Format(time.RFC3339))
	b.WriteString("════════════════════════════════════\n")
	fmt.Fprintf(&b, "Delegations:    %d\n", s.TotalDelegations)
	fmt.Fprintf(&b, "Direct actions: %d\n", s.TotalDirectActions)
	fmt.Fprintf(&b, "Total actions:  %d\n", s.TotalActions)
	fmt.Fprintf(&b, "Delegation ratio: %.2f%% (threshold %d%%)\n", s.DelegationPercentage, s.ThresholdPercentage)
	fmt.Fprintf(&b, "Verdict: %s\n", verdict)
	b.WriteString("\nLast 24 hours\n")
	writeWindow(&b, r.Last24Hours)
	b.WriteString("\nLast 7 days\n")
	writeWindow(&b, r.Last7Days)
	b.WriteString("\nAgent breakdown\n")
	writeBreakdown(&b, s.AgentBreakdown)
	b.WriteString("\nDirect action breakdown\n")
	writeBreakdown(&b, s.DirectActionBreakdown)

	return b.String()
}

func writeWindow(b *strings.Builder, w models.WindowStats) {
	fmt.Fprintf(b, "  %d of %d actions delegated (%.2f%%)\n", w.Delegations, w.Total, w.Ratio*100)
}

func writeBreakdown(b *strings.Builder, counts map[string]int64) {
	if len(counts) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "  %-20s %d\n", name, counts[name])
	}
}
