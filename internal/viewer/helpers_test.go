package viewer

import (
	"log/slog"
	"os"
	"time"

	"multiangle-viewer/internal/dispatch"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions(sched *dispatch.Manual) Options {
	return Options{Scheduler: sched, Logger: testLogger()}
}

func mustAct(s string) Act {
	act, ok := ParseAct(s)
	if !ok {
		panic("bad act " + s)
	}
	return act
}
