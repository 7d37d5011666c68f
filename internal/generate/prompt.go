package generate

import "fmt"

// MemePrompt wraps a mention's text in the meme-generation
// instruction sent to text backends.
func MemePrompt(input string) string {
	return fmt.Sprintf(`You are a Ghanaian meme generator. Given this text, return a short, funny and culturally relevant meme in Pidgin. Be creative and local: %q`, input)
}

// ImagePrompt wraps generated meme text in the image instruction.
func ImagePrompt(memeText string) string {
	return fmt.Sprintf("Generate a culturally relevant and funny Ghanaian meme image based on this text: %q", memeText)
}
