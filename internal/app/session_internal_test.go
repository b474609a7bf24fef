package service

import (
	"testing"

	"github.com/okian/pitwall/internal/domain/model"
)

func TestCommandName(t *testing.T) {
	cases := []struct {
		phase model.Phase
		input string
		want  string
	}{
		{model.PhaseIdle, "", "empty"},
		{model.PhaseIdle, "3 heavy_rain", "select_track"},
		{model.PhaseIdle, "START", "start"},
		{model.PhaseTrackSelected, "1,2,3", "select_drivers"},
		{model.PhaseTrackSelected, "auto 6", "auto"},
		{model.PhaseRunning, "?", "help"},
		{model.PhaseRunning, "overtake", "other"},
		{model.PhaseAwaitingRestartAnswer, "y", "answer"},
		{model.PhaseClosed, "reset", "reset"},
	}
	for _, tc := range cases {
		if got := commandName(tc.phase, tc.input); got != tc.want {
			t.Errorf("commandName(%s, %q) = %q, want %q", tc.phase, tc.input, got, tc.want)
		}
	}
}
