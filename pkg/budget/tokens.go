package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Message is a chat message for token counting and prompt assembly.
type Message struct {
	Role    string
	Content string
}

// tokensPerMessage is the per-message framing overhead in the chat format.
const tokensPerMessage = 3

// replyPrimingTokens accounts for the assistant reply priming.
const replyPrimingTokens = 3

// Counter estimates the input token count of a message list.
type Counter interface {
	CountMessages(messages []Message) int
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewCounter returns a Counter for the model. When no tokenizer is available
// for the model (or at all), it falls back to a character heuristic; the
// budgeter must keep working without tokenizer data files.
func NewCounter(model string) Counter {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &tiktokenCounter{encoding: cached}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return heuristicCounter{}
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &tiktokenCounter{encoding: encoding}
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func (c *tiktokenCounter) CountMessages(messages []Message) int {
	total := replyPrimingTokens
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(c.encoding.Encode(msg.Role, nil, nil))
		total += len(c.encoding.Encode(msg.Content, nil, nil))
	}
	return total
}

// heuristicCounter approximates tokens as ceil(len/4) per message plus the
// framing overhead.
type heuristicCounter struct{}

func (heuristicCounter) CountMessages(messages []Message) int {
	total := replyPrimingTokens
	for _, msg := range messages {
		total += tokensPerMessage
		total += (len(msg.Role) + 3) / 4
		total += (len(msg.Content) + 3) / 4
	}
	return total
}
