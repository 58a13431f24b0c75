package parser

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/forum"
)

// postTimeLayout matches "Thu Jan 01 12:00:00 2024"; _2 also accepts "1" and " 1".
const postTimeLayout = "Mon Jan _2 15:04:05 2006"

// TimeParser interprets post timestamps in a fixed zone.
type TimeParser struct {
	loc    *time.Location
	clock  forum.Clock
	logger *zap.Logger
}

// NewTimeParser builds a TimeParser. A nil loc means UTC.
func NewTimeParser(loc *time.Location, clock forum.Clock, logger *zap.Logger) *TimeParser {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeParser{loc: loc, clock: clock, logger: logger}
}

// Parse tries the full layout, then the layout with the current year
// appended. When both fail it returns the current time and estimated=true.
func (p *TimeParser) Parse(raw string) (t time.Time, estimated bool) {
	value := strings.Join(strings.Fields(raw), " ")
	if parsed, err := time.ParseInLocation(postTimeLayout, value, p.loc); err == nil {
		return parsed, false
	}

	now := p.clock.Now().In(p.loc)
	withYear := value + " " + strconv.Itoa(now.Year())
	if parsed, err := time.ParseInLocation(postTimeLayout, withYear, p.loc); err == nil {
		return parsed, false
	}

	p.logger.Warn("post time unparseable, using current time",
		zap.String("raw", raw),
		zap.Time("fallback", now),
	)
	return now, true
}
