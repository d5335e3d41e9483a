package analytics

import (
	"sort"
	"sync"
	"time"
)

// Summary aggregates events read back from the topic.
type Summary struct {
	mu sync.Mutex

	games       int
	reasons     map[string]int
	winners     map[string]int
	durations   []float64
	gameMoves   int
	gamesPerDay map[string]int

	movesPlayed int
	strategies  map[string]*StrategyStats
}

// StrategyStats totals the engine decisions made with one strategy.
type StrategyStats struct {
	Decisions int     `json:"decisions"`
	Nodes     int     `json:"nodes"`
	Leaves    int     `json:"leaves"`
	Cutoffs   int     `json:"cutoffs"`
	Millis    float64 `json:"millis"`
	MaxPly    int     `json:"maxPly"`
}

// AvgNodes is the mean search size per decision.
func (s StrategyStats) AvgNodes() float64 {
	if s.Decisions == 0 {
		return 0
	}
	return float64(s.Nodes) / float64(s.Decisions)
}

// AvgMillis is the mean decision latency.
func (s StrategyStats) AvgMillis() float64 {
	if s.Decisions == 0 {
		return 0
	}
	return s.Millis / float64(s.Decisions)
}

func NewSummary() *Summary {
	return &Summary{
		reasons:     make(map[string]int),
		winners:     make(map[string]int),
		gamesPerDay: make(map[string]int),
		strategies:  make(map[string]*StrategyStats),
	}
}

// Record folds one event into the summary. Unknown events are ignored.
func (s *Summary) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Event {
	case EventMovePlayed:
		s.movesPlayed++
	case EventMoveDecided:
		name, _ := e.Payload["strategy"].(string)
		st, ok := s.strategies[name]
		if !ok {
			st = &StrategyStats{}
			s.strategies[name] = st
		}
		st.Decisions++
		st.Nodes += toInt(e.Payload["nodes"])
		st.Leaves += toInt(e.Payload["leaves"])
		st.Cutoffs += toInt(e.Payload["cutoffs"])
		st.Millis += toFloat(e.Payload["millis"])
		if ply := toInt(e.Payload["ply"]); ply > st.MaxPly {
			st.MaxPly = ply
		}
	case EventGameFinished:
		s.games++
		if reason, ok := e.Payload["reason"].(string); ok {
			s.reasons[reason]++
		}
		if name, ok := e.Payload["winnerName"].(string); ok && name != "" {
			s.winners[name]++
		}
		if d, ok := e.Payload["duration"].(float64); ok {
			s.durations = append(s.durations, d)
		}
		s.gameMoves += toInt(e.Payload["moves"])
		s.gamesPerDay[e.Timestamp.Format(time.DateOnly)]++
	}
}

// JSON numbers decode as float64; events built in process carry ints.
func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// Report is a point-in-time copy of a Summary.
type Report struct {
	Games        int                      `json:"games"`
	MovesPlayed  int                      `json:"movesPlayed"`
	AvgDuration  float64                  `json:"avgDuration"`
	AvgGameMoves float64                  `json:"avgGameMoves"`
	Reasons      map[string]int           `json:"reasons"`
	TopWinners   []string                 `json:"topWinners"`
	GamesPerDay  map[string]int           `json:"gamesPerDay"`
	Strategies   map[string]StrategyStats `json:"strategies"`
}

func (s *Summary) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{
		Games:       s.games,
		MovesPlayed: s.movesPlayed,
		Reasons:     make(map[string]int, len(s.reasons)),
		GamesPerDay: make(map[string]int, len(s.gamesPerDay)),
		Strategies:  make(map[string]StrategyStats, len(s.strategies)),
	}
	if len(s.durations) > 0 {
		sum := 0.0
		for _, d := range s.durations {
			sum += d
		}
		r.AvgDuration = sum / float64(len(s.durations))
	}
	if s.games > 0 {
		r.AvgGameMoves = float64(s.gameMoves) / float64(s.games)
	}
	for k, v := range s.reasons {
		r.Reasons[k] = v
	}
	for k, v := range s.gamesPerDay {
		r.GamesPerDay[k] = v
	}
	for k, v := range s.strategies {
		r.Strategies[k] = *v
	}
	for name := range s.winners {
		r.TopWinners = append(r.TopWinners, name)
	}
	sort.Slice(r.TopWinners, func(i, j int) bool {
		a, b := r.TopWinners[i], r.TopWinners[j]
		if s.winners[a] != s.winners[b] {
			return s.winners[a] > s.winners[b]
		}
		return a < b
	})
	if len(r.TopWinners) > 5 {
		r.TopWinners = r.TopWinners[:5]
	}
	return r
}
