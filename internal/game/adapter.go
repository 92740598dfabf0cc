// internal/game/adapter.go
package game

import (
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/keepbreathing/engine"
	"github.com/jason-s-yu/keepbreathing/engine/replay"
)

// entryFields describes a folded entry for logging.
func entryFields(e replay.Entry) logrus.Fields {
	f := logrus.Fields{"seq": e.Seq, "ts": e.Timestamp, "action": e.Action.Kind()}
	if actor := e.Action.Actor(); actor != "" {
		f["actor"] = actor
	}
	return f
}

// logTransition logs what changed between two consecutive states: game
// start, round boundaries and drops at Info, everything else at Debug.
func logTransition(log *logrus.Entry, prev, next engine.GameState) {
	switch {
	case prev.Phase() == engine.PhaseStart && next.Phase() != engine.PhaseStart:
		log.WithField("order", next.PlayerOrder).Info("Game started")
		return
	case next.IsGameOver():
		// Reported by endGame.
		return
	case next.Round != prev.Round:
		log.WithFields(logrus.Fields{"round": next.Round, "pathLength": len(next.Path)}).Info("Round started")
		return
	}
	if t, ok := next.Turn.(engine.DropTurn); ok {
		if _, was := prev.Turn.(engine.DropTurn); !was {
			log.WithFields(logrus.Fields{"round": next.Round, "drowned": t.Drowned}).Info("Divers drowned")
			return
		}
	}
	active, _ := next.ActivePlayer()
	log.WithFields(logrus.Fields{
		"phase":  next.Phase(),
		"active": active,
		"oxygen": next.Oxygen,
	}).Debug("Applied entry")
}

// lootView renders a token, revealing its value only when reveal is set.
func lootView(l engine.Loot, reveal bool) LootView {
	v := LootView{ID: l.ID, Level: l.Level}
	if reveal {
		value := l.Value
		v.Value = &value
	}
	return v
}

func groupView(g engine.LootGroup, reveal bool) []LootView {
	out := make([]LootView, len(g))
	for i, l := range g {
		out[i] = lootView(l, reveal)
	}
	return out
}
