package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualTrimmed := strings.TrimSuffix(output, "\n")
	actualParts := strings.Split(actualTrimmed, "\t")
	expectedParts := strings.Split(expected, "\t")
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	// Log level.
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])

	// Filename:line_number.
	actualFilename, actualLineNumber, found := strings.Cut(actualParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	// Log message.
	test.That(t, actualParts[3], test.ShouldEqual, expectedParts[3])

	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	if len(actualParts) == 4 {
		return
	}

	expectedMap := make(map[string]any)
	err = json.Unmarshal([]byte(expectedParts[4]), &expectedMap)
	test.That(t, err, test.ShouldBeNil)

	actualMap := make(map[string]any)
	err = json.Unmarshal([]byte(actualParts[4]), &actualMap)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(DEBUG), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:12:09.459Z	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:45:20.764Z	INFO	logging/impl_test.go:71	impl infof log`)

	logger.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806Z	INFO	logging/impl_test.go:75	impl logw	{"key":"value"}`)

	// Only public fields of a struct are serialized.
	logger.Infow("BasicStruct", "implOneKey", "1val", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	INFO	logging/impl_test.go:80	BasicStruct	{"BasicStruct":{"X":1},"implOneKey":"1val"}`)

	// An unpaired key is reported rather than silently dropped.
	logger.Infow("unpaired", "lonely")
	output := notStdout.String()
	test.That(t, output, test.ShouldContainSubstring, "unpaired log key")
}

func TestLevelFiltering(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"", NewAtomicLevelAt(WARN), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.Warn("kept")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "kept")

	logger.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
	test.That(t, logger.Level().String(), test.ShouldEqual, "error")
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	root := logger.Sublogger("keyframes")
	scorer := root.Sublogger("scorer")

	scorer.Infow("scored", "anchor", 0, "candidate", 1)
	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "keyframes.scorer")
	test.That(t, entries[0].ContextMap()["candidate"], test.ShouldEqual, int64(1))

	// Subloggers carry their own level.
	scorer.SetLevel(ERROR)
	scorer.Info("dropped")
	root.Info("kept")
	test.That(t, observed.Len(), test.ShouldEqual, 2)
}

func TestAsZapSharesAppenders(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"zapview", NewAtomicLevelAt(INFO), true, []Appender{NewWriterAppender(notStdout)}}

	logger.AsZap().Debug("dropped")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)
	logger.AsZap().Infow("through zap", "k", 1)
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "through zap")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "zapview")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestLevelJSONRoundTrip(t *testing.T) {
	type withLevel struct {
		Level Level `json:"level"`
	}
	out, err := json.Marshal(withLevel{WARN})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `{"level":"warn"}`)

	var in withLevel
	test.That(t, json.Unmarshal([]byte(`{"level":"debug"}`), &in), test.ShouldBeNil)
	test.That(t, in.Level, test.ShouldEqual, DEBUG)
	test.That(t, json.Unmarshal([]byte(`{"level":"chatty"}`), &in), test.ShouldNotBeNil)
}

type keyName string

func (k keyName) String() string { return "name:" + string(k) }

func TestKeysAndValuesToFields(t *testing.T) {
	fields := keysAndValuesToFields([]interface{}{"a", 1, keyName("b"), "x", 3})
	test.That(t, fields, test.ShouldHaveLength, 3)
	test.That(t, fields[0].Key, test.ShouldEqual, "a")
	test.That(t, fields[1].Key, test.ShouldEqual, "name:b")
	test.That(t, fields[2].Key, test.ShouldEqual, "3")
	test.That(t, keysAndValuesToFields(nil), test.ShouldBeEmpty)
}
