package engine

import (
	"strconv"
	"strings"
)

// Kind classifies an inbound engine line.
type Kind int

const (
	KindOther Kind = iota
	KindBestMove
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindBestMove:
		return "bestmove"
	case KindInfo:
		return "info"
	default:
		return "other"
	}
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message is one line received from the engine.
type Message struct {
	Kind Kind   `json:"kind"`
	Raw  string `json:"raw"`
	// Seq is the search the message belongs to; zero when no search was pending.
	Seq uint64 `json:"seq,omitempty"`

	BestMove string `json:"bestMove,omitempty"`
	Ponder   string `json:"ponder,omitempty"`
	Info     *Info  `json:"info,omitempty"`
}

// Info holds the fields of an info line the service reports.
type Info struct {
	Depth    int      `json:"depth,omitempty"`
	SelDepth int      `json:"seldepth,omitempty"`
	MultiPV  int      `json:"multipv,omitempty"`
	ScoreCP  *int     `json:"scoreCp,omitempty"`
	Mate     *int     `json:"mate,omitempty"`
	Nodes    int64    `json:"nodes,omitempty"`
	PV       []string `json:"pv,omitempty"`
}

// ParseLine classifies a raw engine line. Unknown tokens in info lines are
// skipped; a malformed number leaves the field unset.
func ParseLine(line string) Message {
	line = strings.TrimSpace(line)
	msg := Message{Kind: KindOther, Raw: line}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return msg
	}

	switch fields[0] {
	case "bestmove":
		msg.Kind = KindBestMove
		if len(fields) > 1 {
			msg.BestMove = fields[1]
		}
		if len(fields) > 3 && fields[2] == "ponder" {
			msg.Ponder = fields[3]
		}
	case "info":
		msg.Kind = KindInfo
		msg.Info = parseInfo(fields[1:])
	}
	return msg
}

func parseInfo(fields []string) *Info {
	info := &Info{}
	for i := 0; i < len(fields); i++ {
		next := func() string {
			if i+1 < len(fields) {
				i++
				return fields[i]
			}
			return ""
		}

		switch fields[i] {
		case "depth":
			info.Depth, _ = strconv.Atoi(next())
		case "seldepth":
			info.SelDepth, _ = strconv.Atoi(next())
		case "multipv":
			info.MultiPV, _ = strconv.Atoi(next())
		case "nodes":
			info.Nodes, _ = strconv.ParseInt(next(), 10, 64)
		case "score":
			kind := next()
			v, err := strconv.Atoi(next())
			if err != nil {
				continue
			}
			switch kind {
			case "cp":
				info.ScoreCP = &v
			case "mate":
				info.Mate = &v
			}
		case "pv":
			// pv runs to the end of the line
			info.PV = append([]string(nil), fields[i+1:]...)
			return info
		case "string":
			return info
		}
	}
	return info
}

// ScoreString renders the score from the side to move, e.g. "+0.35" or "#-3".
func (i *Info) ScoreString() string {
	switch {
	case i == nil:
		return ""
	case i.Mate != nil:
		return "#" + strconv.Itoa(*i.Mate)
	case i.ScoreCP != nil:
		s := strconv.FormatFloat(float64(*i.ScoreCP)/100, 'f', 2, 64)
		if *i.ScoreCP > 0 {
			s = "+" + s
		}
		return s
	}
	return ""
}
