package tools

import "fmt"

// DefaultResultLimit caps tool output fed back into conversation context
// when no per-tool limit or caller override applies.
const DefaultResultLimit = 30000

// resultLimits holds per-tool output caps in characters.
var resultLimits = map[string]int{
	ReadFileToolName: 50000,
	GrepToolName:     20000,
	GlobToolName:     12000,
	ListDirToolName:  12000,
	ShellToolName:    30000,
}

// headTailFractions returns the share of the limit retained at the head and
// tail of an oversized result. Search output front-loads relevance; command
// output carries errors and exit status at the end.
func headTailFractions(cat Category) (head, tail float64) {
	switch cat {
	case CategorySearch:
		return 0.90, 0.05
	case CategoryExecute:
		return 0.20, 0.75
	default:
		return 0.70, 0.25
	}
}

// Bound caps raw tool output at the effective limit for toolName: the
// override when positive, else the per-tool table entry, else
// DefaultResultLimit. Oversized output is spliced into a head segment, an
// omission marker, and a tail segment, with the head/tail split chosen by
// the tool's category. The result never exceeds the effective limit.
func Bound(toolName, raw string, override int) string {
	limit := override
	if limit <= 0 {
		if l, ok := resultLimits[toolName]; ok {
			limit = l
		} else {
			limit = DefaultResultLimit
		}
	}
	if len(raw) <= limit {
		return raw
	}

	headFrac, tailFrac := headTailFractions(CategoryFor(toolName))
	head := int(float64(limit) * headFrac)
	tail := int(float64(limit) * tailFrac)

	// The marker's own length depends on the omitted count, which depends
	// on head size. Shrink the head until everything fits; a couple of
	// rounds converge since digit counts rarely change.
	var marker string
	for i := 0; i < 4; i++ {
		omitted := len(raw) - head - tail
		marker = fmt.Sprintf("\n[truncated: %d chars omitted]\n", omitted)
		over := head + len(marker) + tail - limit
		if over <= 0 {
			break
		}
		head -= over
		if head < 0 {
			tail += head
			head = 0
			if tail < 0 {
				tail = 0
			}
		}
	}

	out := raw[:head] + marker + raw[len(raw)-tail:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
