package harvest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loess-io/gleaner/comm"
	"github.com/loess-io/gleaner/oai"
	"github.com/loess-io/gleaner/sink"
	"github.com/loess-io/gleaner/state"
)

func identifyEnv(granularity, responseDate string) *oai.Envelope {
	env := &oai.Envelope{ResponseDate: responseDate}
	env.Identify.Name = "Test Repository"
	env.Identify.Granularity = granularity
	return env
}

func recordsEnv(token string, ids ...string) *oai.Envelope {
	env := &oai.Envelope{ResponseDate: "2016-07-12T16:19:54Z"}
	for i, id := range ids {
		var rec oai.Record
		rec.Header.Identifier = id
		rec.Header.Datestamp = "2016-06-0" + string(rune('1'+i)) + "T10:00:00Z"
		rec.Metadata.Verbatim = "<dc><title>" + id + "</title></dc>"
		env.ListRecords.Records = append(env.ListRecords.Records, rec)
	}
	env.ListRecords.Token.Value = token
	return env
}

func errorEnv(code, message string) *oai.Envelope {
	env := &oai.Envelope{ResponseDate: "2016-07-12T16:19:54Z"}
	env.Error.Code = code
	env.Error.Message = message
	return env
}

type fixture struct {
	comm   *comm.StubCommunicator
	writer *sink.StubSink
	state  *state.StubManager
}

func newFixture(t *testing.T, cfg Config, steps ...comm.StubStep) (*Harvester, *fixture) {
	t.Helper()
	f := &fixture{
		comm:   comm.NewStubCommunicator(steps...),
		writer: sink.NewStubSink(),
		state:  state.NewStubManager(),
	}
	cfg.Communicator = f.comm
	cfg.Writer = f.writer
	cfg.State = f.state
	h, err := NewHarvester(cfg)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}
	return h, f
}

// Single-page harvest: explicit second-level granularity, no until.
// Identify is called exactly once to obtain the end boundary from the
// server clock, then one ListRecords with two records and no token.
func TestLaunch_SinglePage(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond},
		comm.StubStep{Envelope: identifyEnv("YYYY-MM-DDThh:mm:ssZ", "2016-07-12T16:19:54Z")},
		comm.StubStep{Envelope: recordsEnv("", "oai:1", "oai:2")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if len(f.comm.Calls) != 2 {
		t.Fatalf("communicator calls = %d, want 2", len(f.comm.Calls))
	}
	if f.comm.Calls[0].Verb != oai.VerbIdentify {
		t.Errorf("first verb = %q, want Identify", f.comm.Calls[0].Verb)
	}
	if f.comm.Calls[1].Verb != oai.VerbListRecords {
		t.Errorf("second verb = %q, want ListRecords", f.comm.Calls[1].Verb)
	}
	if len(f.writer.Batches) != 1 {
		t.Fatalf("writer batches = %d, want 1", len(f.writer.Batches))
	}
	if len(f.writer.Batches[0].Records) != 2 {
		t.Errorf("batch size = %d, want 2", len(f.writer.Batches[0].Records))
	}
	if len(f.state.SavedDates) != 1 || f.state.SavedDates[0] != "2016-07-12T16:19:54Z" {
		t.Errorf("saved dates = %v, want [2016-07-12T16:19:54Z]", f.state.SavedDates)
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
	if len(f.state.Saved) != 0 {
		t.Errorf("saveState calls = %d, want 0 for single page", len(f.state.Saved))
	}
}

// Token chain: two pages. The second request must carry the resumption
// token as its sole parameter, and the checkpoint must precede it.
func TestLaunch_TokenChain(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01T00:00:00Z"},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1")},
		comm.StubStep{Envelope: recordsEnv("", "oai:2")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if len(f.comm.Calls) != 2 {
		t.Fatalf("communicator calls = %d, want 2 (no Identify with explicit granularity and until)", len(f.comm.Calls))
	}
	first := f.comm.Calls[0]
	if first.Params[oai.ParamMetadataPrefix] != "oai_dc" {
		t.Errorf("first request prefix = %q, want oai_dc", first.Params[oai.ParamMetadataPrefix])
	}
	if first.Params[oai.ParamUntil] != "2016-07-01T00:00:00Z" {
		t.Errorf("first request until = %q, want caller value verbatim", first.Params[oai.ParamUntil])
	}

	second := f.comm.Calls[1]
	if len(second.Params) != 1 {
		t.Errorf("second request params = %v, want exactly one key", second.Params)
	}
	if second.Params[oai.ParamResumptionToken] != "T1" {
		t.Errorf("second request token = %q, want T1", second.Params[oai.ParamResumptionToken])
	}

	if len(f.state.Saved) != 1 {
		t.Fatalf("saveState calls = %d, want 1", len(f.state.Saved))
	}
	cp := f.state.Saved[0]
	if cp.Set != "" || cp.Token != "T1" || cp.End != "2016-07-01T00:00:00Z" {
		t.Errorf("checkpoint = %+v", cp)
	}

	if len(f.writer.Batches) != 2 {
		t.Errorf("writer batches = %d, want 2", len(f.writer.Batches))
	}
	if len(f.state.SavedDates) != 1 || f.state.SavedDates[0] != "2016-07-01T00:00:00Z" {
		t.Errorf("saved dates = %v", f.state.SavedDates)
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
}

// Bad token recovery: a resumed run whose token the server rejects must
// clear the checkpoint and fail with TokenExpiredError naming the
// checkpoint artifact.
func TestLaunch_BadTokenRecovery(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: errorEnv("badResumptionToken", "token expired")},
	)
	f.state.Fields = []string{"", "foo", "", ""}

	err := h.Launch(context.Background())
	var expired *TokenExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("Launch error = %v, want TokenExpiredError", err)
	}
	if !strings.Contains(err.Error(), "last_state.txt") {
		t.Errorf("message %q does not name last_state.txt", err.Error())
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
	if len(f.comm.Calls) != 1 {
		t.Fatalf("communicator calls = %d, want 1", len(f.comm.Calls))
	}
	if f.comm.Calls[0].Params[oai.ParamResumptionToken] != "foo" {
		t.Errorf("resume request params = %v", f.comm.Calls[0].Params)
	}
	if len(f.writer.Batches) != 0 {
		t.Errorf("writer called on error response")
	}
	if len(f.state.SavedDates) != 0 {
		t.Errorf("marker advanced on failed run: %v", f.state.SavedDates)
	}
}

// Corrupt checkpoint: wrong arity fails before any request is issued
// beyond Prepare, with the checkpoint cleared.
func TestLaunch_CorruptCheckpoint(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
	)
	f.state.Fields = []string{"a", "b", "c"}

	err := h.Launch(context.Background())
	var corrupt *CorruptStateError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Launch error = %v, want CorruptStateError", err)
	}
	if corrupt.Fields != 3 {
		t.Errorf("Fields = %d, want 3", corrupt.Fields)
	}
	if !strings.Contains(err.Error(), "last_state.txt") {
		t.Errorf("message %q does not name last_state.txt", err.Error())
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
	if len(f.comm.Calls) != 0 {
		t.Errorf("communicator calls = %d, want 0", len(f.comm.Calls))
	}
}

// Granularity autodetect against a day-granularity server: the end
// boundary is the truncated responseDate, both in checkpoints and in the
// advanced marker.
func TestLaunch_GranularityAutodetectDay(t *testing.T) {
	h, f := newFixture(t,
		Config{},
		comm.StubStep{Envelope: identifyEnv("YYYY-MM-DD", "2016-07-12T16:19:54Z")},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1")},
		comm.StubStep{Envelope: recordsEnv("", "oai:2")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	initial := f.comm.Calls[1]
	if got := initial.Params[oai.ParamUntil]; got != "2016-07-12" {
		t.Errorf("until param = %q, want 2016-07-12", got)
	}
	if got := initial.Params[oai.ParamUntil]; len(got) != 10 {
		t.Errorf("day boundary length = %d, want 10", len(got))
	}
	if len(f.state.Saved) != 1 || f.state.Saved[0].End != "2016-07-12" {
		t.Errorf("checkpoint end = %+v, want 2016-07-12", f.state.Saved)
	}
	if len(f.state.SavedDates) != 1 || f.state.SavedDates[0] != "2016-07-12" {
		t.Errorf("saved dates = %v, want [2016-07-12]", f.state.SavedDates)
	}
}

// Multi-set resume: the set before the interrupted one is skipped with
// zero communicator calls; the interrupted set starts from the saved
// token.
func TestLaunch_MultiSetResume(t *testing.T) {
	h, f := newFixture(t,
		Config{Sets: []string{"A", "B"}, Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("", "oai:b1")},
	)
	f.state.Fields = []string{"B", "tokB", "2016-01-01", "2016-07-01"}

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if len(f.comm.Calls) != 1 {
		t.Fatalf("communicator calls = %d, want 1 (set A skipped)", len(f.comm.Calls))
	}
	call := f.comm.Calls[0]
	if len(call.Params) != 1 || call.Params[oai.ParamResumptionToken] != "tokB" {
		t.Errorf("resume request params = %v, want sole token tokB", call.Params)
	}
	if len(f.writer.Batches) != 1 || f.writer.Batches[0].Set != "B" {
		t.Errorf("writer batches = %+v, want one batch for set B", f.writer.Batches)
	}
	if len(f.state.SavedDates) != 1 || f.state.SavedDates[0] != "2016-07-01" {
		t.Errorf("saved dates = %v, want the checkpoint window end", f.state.SavedDates)
	}
}

// Zero records for the window: clean termination, writer never called,
// marker advanced, no checkpoint remains.
func TestLaunch_ZeroRecords(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if len(f.writer.Batches) != 0 {
		t.Errorf("writer called for empty response")
	}
	if len(f.state.SavedDates) != 1 {
		t.Errorf("marker not advanced")
	}
	if f.state.Fields != nil {
		t.Errorf("checkpoint remains: %v", f.state.Fields)
	}
}

// An empty page carrying a token is legal mid-stream: the loop continues
// without calling the writer for the empty batch.
func TestLaunch_EmptyPageMidStream(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("T1")},
		comm.StubStep{Envelope: recordsEnv("", "oai:1")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if len(f.comm.Calls) != 2 {
		t.Fatalf("communicator calls = %d, want 2", len(f.comm.Calls))
	}
	if len(f.writer.Batches) != 1 {
		t.Errorf("writer batches = %d, want 1", len(f.writer.Batches))
	}
	if len(f.state.Saved) != 1 || f.state.Saved[0].Token != "T1" {
		t.Errorf("checkpoints = %+v", f.state.Saved)
	}
}

// Transport failures surface as TransportError with the checkpoint
// preserved for an identical retry.
func TestLaunch_TransportErrorPreservesCheckpoint(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1")},
		comm.StubStep{Err: errors.New("connection refused")},
	)

	err := h.Launch(context.Background())
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("Launch error = %v, want TransportError", err)
	}
	if f.state.Cleared != 0 {
		t.Errorf("checkpoint cleared on transport failure")
	}
	if len(f.state.Fields) != 4 || f.state.Fields[1] != "T1" {
		t.Errorf("checkpoint = %v, want T1 preserved", f.state.Fields)
	}
}

// Protocol errors other than badResumptionToken leave the checkpoint
// intact for a user-decided retry.
func TestLaunch_ProtocolErrorPreservesCheckpoint(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1")},
		comm.StubStep{Envelope: errorEnv("badArgument", "until malformed")},
	)

	err := h.Launch(context.Background())
	var protocol *OaiProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("Launch error = %v, want OaiProtocolError", err)
	}
	if protocol.Code != "badArgument" {
		t.Errorf("code = %q", protocol.Code)
	}
	if f.state.Cleared != 0 {
		t.Errorf("checkpoint cleared for non-token protocol error")
	}
}

// Writer failures propagate as WriterError with the checkpoint preserved.
func TestLaunch_WriterErrorPropagates(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("", "oai:1")},
	)
	f.writer.WriteErr = errors.New("disk full")

	err := h.Launch(context.Background())
	var writerErr *WriterError
	if !errors.As(err, &writerErr) {
		t.Fatalf("Launch error = %v, want WriterError", err)
	}
	if f.state.Cleared != 0 {
		t.Errorf("checkpoint cleared on writer failure")
	}
}

// No from and no prior marker: the initial request carries no from
// parameter. A stored marker becomes the default from.
func TestLaunch_FromDefaults(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if _, ok := f.comm.Calls[0].Params[oai.ParamFrom]; ok {
		t.Errorf("from param present without marker: %v", f.comm.Calls[0].Params)
	}

	h2, f2 := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("")},
	)
	f2.state.Date = "2016-01-01T00:00:00Z"
	if err := h2.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := f2.comm.Calls[0].Params[oai.ParamFrom]; got != "2016-01-01T00:00:00Z" {
		t.Errorf("from param = %q, want stored marker", got)
	}
}

// Caller-supplied until is never truncated, even at day granularity.
func TestLaunch_CallerUntilVerbatim(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularityDay, Until: "2016-07-12T00:00:00Z"},
		comm.StubStep{Envelope: recordsEnv("")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if got := f.comm.Calls[0].Params[oai.ParamUntil]; got != "2016-07-12T00:00:00Z" {
		t.Errorf("until param = %q, want caller value verbatim", got)
	}
}

// Records reach the writer in server order, batch by batch.
func TestLaunch_RecordOrderPreserved(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1", "oai:2", "oai:3")},
		comm.StubStep{Envelope: recordsEnv("", "oai:4", "oai:5")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	var got []string
	for _, batch := range f.writer.Batches {
		for _, rec := range batch.Records {
			got = append(got, rec.Header.Identifier)
		}
	}
	want := []string{"oai:1", "oai:2", "oai:3", "oai:4", "oai:5"}
	if len(got) != len(want) {
		t.Fatalf("records = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// A checkpoint naming a set absent from the configuration harvests
// nothing; Finalize still runs and clears it.
func TestLaunch_ResumeSetAbsentFromConfig(t *testing.T) {
	h, f := newFixture(t,
		Config{Sets: []string{"A"}, Granularity: oai.GranularitySecond, Until: "2016-07-01"},
	)
	f.state.Fields = []string{"B", "tokB", "", "2016-06-01"}

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if len(f.comm.Calls) != 0 {
		t.Errorf("communicator calls = %d, want 0", len(f.comm.Calls))
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
	if len(f.state.SavedDates) != 1 || f.state.SavedDates[0] != "2016-06-01" {
		t.Errorf("saved dates = %v, want the checkpoint window end", f.state.SavedDates)
	}
}

// SkipIdentify with no until: no Identify call, no end boundary, marker
// left untouched.
func TestLaunch_SkipIdentifyWithoutUntil(t *testing.T) {
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, SkipIdentify: true},
		comm.StubStep{Envelope: recordsEnv("", "oai:1")},
	)

	if err := h.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if f.comm.Calls[0].Verb != oai.VerbListRecords {
		t.Errorf("first verb = %q, want ListRecords", f.comm.Calls[0].Verb)
	}
	if _, ok := f.comm.Calls[0].Params[oai.ParamUntil]; ok {
		t.Errorf("until param present: %v", f.comm.Calls[0].Params)
	}
	if len(f.state.SavedDates) != 0 {
		t.Errorf("marker advanced without an end boundary: %v", f.state.SavedDates)
	}
	if f.state.Cleared != 1 {
		t.Errorf("clearState calls = %d, want 1", f.state.Cleared)
	}
}

// Cancellation is honored before the next request: a context canceled
// before Launch stops the run ahead of its first request.
func TestLaunch_CancellationStopsBeforeRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, f := newFixture(t,
		Config{Granularity: oai.GranularitySecond, Until: "2016-07-01"},
		comm.StubStep{Envelope: recordsEnv("T1", "oai:1")},
	)
	// Cancel before Launch, so the first ListRecords is never issued.
	cancel()

	err := h.Launch(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Launch error = %v, want context.Canceled", err)
	}
	if len(f.comm.Calls) != 0 {
		t.Errorf("request issued after cancellation")
	}
}

// An unknown configured granularity is a construction error.
func TestNewHarvester_Validation(t *testing.T) {
	base := Config{
		Communicator: comm.NewStubCommunicator(),
		Writer:       sink.NewStubSink(),
		State:        state.NewStubManager(),
	}

	bad := base
	bad.Granularity = "YYYY"
	if _, err := NewHarvester(bad); err == nil {
		t.Error("expected error for unknown granularity")
	}

	missing := base
	missing.Communicator = nil
	if _, err := NewHarvester(missing); err == nil {
		t.Error("expected error for missing communicator")
	}

	h, err := NewHarvester(base)
	if err != nil {
		t.Fatalf("NewHarvester: %v", err)
	}
	if h.cfg.Prefix != "oai_dc" {
		t.Errorf("default prefix = %q, want oai_dc", h.cfg.Prefix)
	}
}
