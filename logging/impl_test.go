package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
	z string
}

type User struct {
	Name string
}

type StructWithStruct struct {
	x int
	Y User
	z string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	// `Helper` will result in test failures being associated with the callers line number. It's
	// more useful to report which `assertLogMatches` call failed rather than which assertion
	// inside this function. Maybe.
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	// The exact time is unknowable; verify it parses with the expected layout.
	_, err = time.Parse(DefaultTimeFormatStr, actualParts[0])
	test.That(t, err, test.ShouldBeNil)
	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	// Verify the filename matches exactly.
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	// Verify the line number is in fact a number, but no more.
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	// Log message.
	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	// Structured logging with the "w" API. E.g: `Debugw` has an extra tab delimited output.
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	// JSON encoding of maps can be unpredictable because map iteration order can change between
	// runs. Parse the output into maps and assert on map equality.
	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[4]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)

	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[4]), &actualMap)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

// E.g:
//
//	2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:87	impl Info log
func TestConsoleOutputFormat(t *testing.T) {
	// A logger object that will write to the `notStdout` buffer.
	notStdout := &bytes.Buffer{}
	impl := newImpl("", DEBUG, true, NewWriterAppender(notStdout))

	impl.Info("impl Info log")
	// Note the use of tabs between the date, level, file location and log line. The
	// `assertLogMatches` helper will also deal with the changes to the time/line number.
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459-0400	INFO	logging/impl_test.go:67	impl Info log`)

	// Using `Infof` substitutes the tail arguments into the leading template string input.
	impl.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764-0400	INFO	logging/impl_test.go:131	impl infof log`)

	// Using `Infow` turns the tail arguments into a map for structured logging.
	impl.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806-0400	INFO	logging/impl_test.go:132	impl logw	{"key":"value"}`)

	impl.Infow("StructWithStruct", "key", "val", "StructWithStruct", StructWithStruct{1, User{"alice"}, "foo"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:123	StructWithStruct	{"StructWithStruct":{"Y":{"Name":"alice"}},"key":"val"}`)

	impl.Infow("BasicStruct", "implOneKey", "1val", "BasicStruct", BasicStruct{1, "alice", "foo"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:125	BasicStruct	{"BasicStruct":{"X":1},"implOneKey":"1val"}`)

	// An unpaired key is logged with an error value rather than dropped.
	impl.Warnw("unpaired", "lonely")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	WARN	logging/impl_test.go:125	unpaired	{"lonely":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := NewBlankLogger("")
	logger.AddAppender(NewWriterAppender(notStdout))
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	ERROR	logging/impl_test.go:125	kept`)

	for _, name := range []string{"debug", "INFO", "Warn", "error"} {
		_, err := LevelFromString(name)
		test.That(t, err, test.ShouldBeNil)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	test.That(t, json.Unmarshal([]byte(`"loud"`), &level), test.ShouldNotBeNil)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)

	test.That(t, Level(7).Valid(), test.ShouldBeFalse)
	_, err = json.Marshal(Level(7))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer ReplaceGlobal(prev)

	logger, observed := NewObservedTestLogger(t)
	ReplaceGlobal(logger)
	Global().Infow("through the global logger", "n", 1)
	test.That(t, observed.FilterMessage("through the global logger").Len(), test.ShouldEqual, 1)
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("engine").Sublogger("pinhole")
	sub.Infow("prepared", "rows", 3)

	entries := observed.All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "engine.pinhole")
	test.That(t, entries[0].Message, test.ShouldEqual, "prepared")
	test.That(t, entries[0].ContextMap()["rows"], test.ShouldEqual, int64(3))

	sub.SetLevel(ERROR)
	sub.Info("dropped")
	test.That(t, observed.Len(), test.ShouldEqual, 1)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestWith(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	framed := logger.Sublogger("front").With("frame", 7)
	framed.Warnw("skipping frame", "op", "undistort")
	framed.Info("plain")
	logger.Info("untouched")

	entries := observed.All()
	test.That(t, len(entries), test.ShouldEqual, 3)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "front")
	test.That(t, entries[0].ContextMap(), test.ShouldResemble, map[string]interface{}{"frame": int64(7), "op": "undistort"})
	test.That(t, entries[1].ContextMap(), test.ShouldResemble, map[string]interface{}{"frame": int64(7)})
	test.That(t, entries[2].ContextMap(), test.ShouldBeEmpty)

	notStdout := &bytes.Buffer{}
	console := newImpl("", DEBUG, true, NewWriterAppender(notStdout)).With("camera", "rear")
	console.Infow("mapped", "points", 2)
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129-0400	INFO	logging/impl_test.go:180	mapped	{"camera":"rear","points":2}`)
}
