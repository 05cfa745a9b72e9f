package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	convey.Convey("Given the default initialization", t, func() {
		err := Init()
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = Sync() }()

		convey.Convey("Then the global logger should be available", func() {
			convey.So(Get(), convey.ShouldNotBeNil)
			convey.So(Named("test"), convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given an unknown format", t, func() {
		err := Init(WithFormat("xml"))
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	convey.Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		convey.So(Init(WithWriter(&buf), WithFormat("json")), convey.ShouldBeNil)
		defer func() { _ = Init() }()

		ctx := context.Background()

		convey.Convey("When logging with fields from a named logger", func() {
			Named("pipeline").With(String("run_id", "r-1")).Info(ctx, "inference done",
				Ints("learning_path", []int{0, 1, 2}),
				Error(errors.New("none")),
			)

			var rec map[string]any
			convey.So(json.Unmarshal(buf.Bytes(), &rec), convey.ShouldBeNil)

			convey.Convey("Then the record should carry every field", func() {
				convey.So(rec["msg"], convey.ShouldEqual, "inference done")
				convey.So(rec["component"], convey.ShouldEqual, "pipeline")
				convey.So(rec["run_id"], convey.ShouldEqual, "r-1")
				convey.So(rec["learning_path"], convey.ShouldResemble, []any{0.0, 1.0, 2.0})
				convey.So(rec["source"], convey.ShouldContainSubstring, "logger_test.go")
			})
		})

		convey.Convey("When the level filters a message", func() {
			convey.So(SetLevelString("warn"), convey.ShouldBeNil)
			defer func() { _ = SetLevelString("info") }()
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			convey.Convey("Then only the warning should be written", func() {
				out := buf.String()
				convey.So(strings.Contains(out, "hidden"), convey.ShouldBeFalse)
				convey.So(strings.Contains(out, "shown"), convey.ShouldBeTrue)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	convey.Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "warn", "warning", "ERROR"} {
			convey.So(SetLevelString(lvl), convey.ShouldBeNil)
		}
		convey.So(SetLevelString("loud"), convey.ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}

func TestNop(t *testing.T) {
	convey.Convey("Given a no-op logger", t, func() {
		l := Nop()
		convey.So(func() { l.Named("x").Error(context.Background(), "dropped") }, convey.ShouldNotPanic)
	})
}
