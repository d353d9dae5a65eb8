// Package classifier holds the intent classifier backends: the external
// analysis service spoken to over HTTP and an OpenAI chat-completion model.
package classifier
