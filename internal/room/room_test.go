package room

import (
	"fmt"
	"testing"
)

func fakeSubscribe(calls *[]string) func(string) (TopicHandle, error) {
	return func(name string) (TopicHandle, error) {
		*calls = append(*calls, name)
		return "handle:" + name, nil
	}
}

func TestNewSubscribesOwnDMRoom(t *testing.T) {
	var calls []string
	tbl, err := New("12D3KooWAbCdEf12345", fakeSubscribe(&calls))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := DMRoomName("12D3KooWAbCdEf12345")
	if len(calls) != 1 || calls[0] != want {
		t.Fatalf("subscribe calls = %v, want [%s]", calls, want)
	}
	if _, ok := tbl.LookupByName(want); !ok {
		t.Error("own DM room should be present in the table after New")
	}
}

func TestDMRoomNameLastFive(t *testing.T) {
	cases := map[string]string{
		"12D3KooWAbCdEf12345": "12345",
		"short":               "short",
		"ab":                  "ab",
	}
	for in, want := range cases {
		if got := DMRoomName(in); got != want {
			t.Errorf("DMRoomName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	var calls []string
	tbl, _ := New("peer-abcde", fakeSubscribe(&calls))

	if r := tbl.Classify("public_test"); r.Kind != Public {
		t.Errorf("classify public_test = %v, want Public", r.Kind)
	}
	if r := tbl.Classify(DMRoomName("peer-abcde")); r.Kind != Direct {
		t.Errorf("classify own DM room = %v, want Direct", r.Kind)
	}
	if r := tbl.Classify("fghij"); r.Kind != Public {
		// Some other peer's DM room, not ours: default Public per spec.md §4.3.
		t.Errorf("classify other peer's DM room = %v, want Public (default)", r.Kind)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	var calls []string
	tbl, _ := New("peer-abcde", fakeSubscribe(&calls))

	calls = nil
	if _, err := tbl.Join("public_news", fakeSubscribe(&calls)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := tbl.Join("public_news", fakeSubscribe(&calls)); err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("subscribe called %d times, want 1 (idempotent join)", len(calls))
	}
}

func TestLeaveRemovesEntry(t *testing.T) {
	var calls []string
	tbl, _ := New("peer-abcde", fakeSubscribe(&calls))
	tbl.Join("public_news", fakeSubscribe(&calls))

	var unsubscribed []string
	tbl.Leave("public_news", func(name string) { unsubscribed = append(unsubscribed, name) })

	if _, ok := tbl.LookupByName("public_news"); ok {
		t.Error("public_news should be gone after Leave")
	}
	if len(unsubscribed) != 1 || unsubscribed[0] != "public_news" {
		t.Errorf("unsubscribed = %v, want [public_news]", unsubscribed)
	}
}

func TestResolveByHash(t *testing.T) {
	var calls []string
	tbl, _ := New("peer-abcde", fakeSubscribe(&calls))
	tbl.Join("public_news", fakeSubscribe(&calls))

	hashOf := func(h TopicHandle) string { return fmt.Sprint(h) }

	r, err := tbl.ResolveByHash("handle:public_news", hashOf)
	if err != nil {
		t.Fatalf("ResolveByHash: %v", err)
	}
	if r.Name != "public_news" || r.Kind != Public {
		t.Errorf("resolved room = %+v, want public_news/Public", r)
	}
}

func TestResolveByHashUnknownTopicIsFatal(t *testing.T) {
	var calls []string
	tbl, _ := New("peer-abcde", fakeSubscribe(&calls))

	hashOf := func(h TopicHandle) string { return fmt.Sprint(h) }
	_, err := tbl.ResolveByHash("handle:nonexistent", hashOf)

	var unknown ErrUnknownTopic
	if _, ok := err.(ErrUnknownTopic); !ok {
		t.Fatalf("err = %v (%T), want ErrUnknownTopic", err, err)
	}
	_ = unknown
}
