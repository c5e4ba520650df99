package pipes

import (
	"testing"

	"github.com/mikabele/canoe-go/internal/chatevent"
)

func TestCommandMatchesBareAndWithArguments(t *testing.T) {
	age := Command("age")
	cases := []struct {
		text string
		want bool
	}{
		{"/age", true},
		{"/age 30", true},
		{"/agent", false},
		{"age", false},
		{"/age30", false},
	}
	for _, c := range cases {
		ev := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: c.text}
		if got := age(ev); got != c.want {
			t.Errorf("Command(age)(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestContainingMatchesSubstring(t *testing.T) {
	pred := Containing("help")
	yes := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: "I need help please"}
	no := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: "all good"}
	if !pred(yes) || pred(no) {
		t.Fatalf("Containing(help) matched incorrectly: yes=%v no=%v", pred(yes), pred(no))
	}
}

func TestDocumentMessageRequiresAttachment(t *testing.T) {
	pred := DocumentMessage()
	withDoc := chatevent.Event{Kind: chatevent.KindIncomingMessage, DocumentName: "report.pdf"}
	withoutDoc := chatevent.Event{Kind: chatevent.KindIncomingMessage}
	if !pred(withDoc) || pred(withoutDoc) {
		t.Fatalf("DocumentMessage matched incorrectly")
	}
}

func TestCallbackMatchesOriginMessage(t *testing.T) {
	pred := Callback("msg-1")
	matching := chatevent.Event{Kind: chatevent.KindCallbackQuery, OriginMessageID: "msg-1"}
	other := chatevent.Event{Kind: chatevent.KindCallbackQuery, OriginMessageID: "msg-2"}
	if !pred(matching) || pred(other) {
		t.Fatalf("Callback matched incorrectly")
	}
}

func TestMessageableExcludesEditsAndInlineQueries(t *testing.T) {
	pred := Messageable()
	for _, ev := range []chatevent.Event{
		{Kind: chatevent.KindIncomingMessage},
		{Kind: chatevent.KindCallbackQuery},
	} {
		if !pred(ev) {
			t.Errorf("Messageable rejected %v", ev.Kind)
		}
	}
	for _, ev := range []chatevent.Event{
		{Kind: chatevent.KindEdited},
		{Kind: chatevent.KindInlineQuery},
	} {
		if pred(ev) {
			t.Errorf("Messageable accepted %v", ev.Kind)
		}
	}
}

func TestAndOrNotCompose(t *testing.T) {
	isHello := Containing("hello")
	isBye := Containing("bye")
	combined := Or(isHello, isBye)
	notHello := Not(isHello)

	hello := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: "hello there"}
	bye := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: "goodbye"}
	neither := chatevent.Event{Kind: chatevent.KindIncomingMessage, Text: "what's up"}

	if !combined(hello) || !combined(bye) || combined(neither) {
		t.Fatalf("Or(isHello, isBye) composed incorrectly")
	}
	if notHello(hello) || !notHello(neither) {
		t.Fatalf("Not(isHello) composed incorrectly")
	}
}
