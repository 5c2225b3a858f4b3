package physical

import (
	"context"
	"sync"
)

// Message is one frame on the hardware bus. Inbound frames carry button
// presses and the hardware's press-race verdict; outbound frames command the
// device. Framing below this level (serial port, baud rate) belongs to the
// bus implementation.
type Message struct {
	Type         string  `json:"type"`
	Button       string  `json:"button,omitempty"`
	Winner       string  `json:"winner,omitempty"`
	ReactionTime float64 `json:"reaction_time,omitempty"`
}

// Inbound message types.
const (
	TypeButtonPress       = "button_press"
	TypeCompetitionWinner = "competition_winner"
)

// Outbound message types.
const (
	TypeQuestionStart = "question_start"
	TypeAnswerCorrect = "answer_correct"
	TypeAnswerWrong   = "answer_wrong"
	TypeGameEnd       = "game_end"
)

// Player buttons. FAST1 and FAST2 are the two press-race buzzers; A through
// D select an answer.
const (
	ButtonFast1 = "FAST1"
	ButtonFast2 = "FAST2"
)

// AnswerIndex maps an answer button to its option index, or -1 for
// non-answer buttons.
func AnswerIndex(button string) int {
	switch button {
	case "A":
		return 0
	case "B":
		return 1
	case "C":
		return 2
	case "D":
		return 3
	default:
		return -1
	}
}

// Bus is an opaque duplex channel to the competition hardware.
type Bus interface {
	Send(ctx context.Context, msg Message) error
	Receive() <-chan Message
}

// MemoryBus is an in-process Bus for tests.
type MemoryBus struct {
	mu      sync.Mutex
	sent    []Message
	inbound chan Message
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{inbound: make(chan Message, 16)}
}

func (b *MemoryBus) Send(ctx context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	return nil
}

func (b *MemoryBus) Receive() <-chan Message {
	return b.inbound
}

// Inject queues an inbound hardware event.
func (b *MemoryBus) Inject(msg Message) {
	b.inbound <- msg
}

// Sent returns a copy of everything sent to the device.
func (b *MemoryBus) Sent() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.sent))
	copy(out, b.sent)
	return out
}
