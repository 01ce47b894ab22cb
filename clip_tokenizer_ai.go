//go:build ai

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// CLIPTokenizer implements the byte-level BPE scheme of the CLIP text
// encoder, producing fixed-length id and attention rows.
type CLIPTokenizer struct {
	encoder     map[string]int
	bpeRanks    map[[2]string]int
	cache       map[string]string
	pat         *regexp.Regexp
	byteEncoder map[byte]rune
}

type tokenizerFile struct {
	Model struct {
		Type   string         `json:"type"`
		Vocab  map[string]int `json:"vocab"`
		Merges any            `json:"merges"`
	} `json:"model"`
}

// NewCLIPTokenizer loads the vocabulary from dir, preferring the classic
// vocab.json plus merges.txt pair over a combined tokenizer.json export.
func NewCLIPTokenizer(dir string) (*CLIPTokenizer, error) {
	vocabPath := filepath.Join(dir, "vocab.json")
	mergesPath := filepath.Join(dir, "merges.txt")

	if fileExists(vocabPath) && fileExists(mergesPath) {
		return newTokenizerFromVocabMerges(vocabPath, mergesPath)
	}

	combined := filepath.Join(dir, "tokenizer.json")

	if fileExists(combined) {
		return newTokenizerFromCombined(combined)
	}

	return nil, fmt.Errorf("no tokenizer in %s (expected vocab.json+merges.txt or tokenizer.json)", dir)
}

func newTokenizerFromVocabMerges(vocabPath, mergesPath string) (*CLIPTokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, err
	}

	var encoder map[string]int

	err = json.Unmarshal(data, &encoder)
	if err != nil {
		return nil, fmt.Errorf("parse vocab.json: %w", err)
	}

	ranks, err := loadMerges(mergesPath)
	if err != nil {
		return nil, err
	}

	return newCLIPTokenizer(encoder, ranks), nil
}

func newTokenizerFromCombined(path string) (*CLIPTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file tokenizerFile

	err = json.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}

	if !strings.EqualFold(file.Model.Type, "bpe") {
		return nil, fmt.Errorf("tokenizer.json model type is %q, expected BPE", file.Model.Type)
	}

	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json has an empty vocab")
	}

	merges, err := flattenMerges(file.Model.Merges)
	if err != nil {
		return nil, err
	}

	ranks := make(map[[2]string]int, len(merges))

	for i, merge := range merges {
		parts := strings.SplitN(strings.TrimSpace(merge), " ", 2)
		if len(parts) != 2 {
			continue
		}

		ranks[[2]string{parts[0], parts[1]}] = i
	}

	return newCLIPTokenizer(file.Model.Vocab, ranks), nil
}

func newCLIPTokenizer(encoder map[string]int, ranks map[[2]string]int) *CLIPTokenizer {
	pat := regexp.MustCompile(`(?i)<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|[\p{L}]+|[\p{N}]+|[^\s\p{L}\p{N}]+`)

	return &CLIPTokenizer{
		encoder:     encoder,
		bpeRanks:    ranks,
		cache:       make(map[string]string),
		pat:         pat,
		byteEncoder: bytesToUnicode(),
	}
}

// Encode lowercases and tokenizes text into exactly clipMaxTokens id and
// attention slots, wrapped in the start and end sentinels. Overlong inputs
// are truncated, never split across rows.
func (t *CLIPTokenizer) Encode(text string) ([]int64, []int64) {
	text = html.UnescapeString(text)
	text = strings.ToLower(text)
	text = strings.Join(strings.Fields(text), " ")

	var tokens []int

	for _, match := range t.pat.FindAllString(text, -1) {
		bpe := t.bpe(t.encodeBytes([]byte(match)))

		for _, part := range strings.Split(bpe, " ") {
			if id, ok := t.encoder[part]; ok {
				tokens = append(tokens, id)
			}
		}
	}

	ids := make([]int64, clipMaxTokens)
	att := make([]int64, clipMaxTokens)

	ids[0] = clipSOT
	att[0] = 1

	n := min(len(tokens), clipMaxTokens-2)

	for i := 0; i < n; i++ {
		ids[i+1] = int64(tokens[i])
		att[i+1] = 1
	}

	ids[n+1] = clipEOT
	att[n+1] = 1

	return ids, att
}

func (t *CLIPTokenizer) encodeBytes(b []byte) string {
	var sb strings.Builder

	sb.Grow(len(b))

	for _, by := range b {
		sb.WriteRune(t.byteEncoder[by])
	}

	return sb.String()
}

func (t *CLIPTokenizer) bpe(token string) string {
	if v, ok := t.cache[token]; ok {
		return v
	}

	word := make([]string, 0, utf8.RuneCountInString(token))

	for _, r := range token {
		word = append(word, string(r))
	}

	if len(word) > 0 {
		word[len(word)-1] += "</w>"
	}

	for len(word) >= 2 {
		bestRank := int(^uint(0) >> 1)

		var (
			best  [2]string
			found bool
		)

		for i := 0; i < len(word)-1; i++ {
			pair := [2]string{word[i], word[i+1]}

			if rank, ok := t.bpeRanks[pair]; ok && rank < bestRank {
				bestRank = rank
				best = pair

				found = true
			}
		}

		if !found {
			break
		}

		newWord := make([]string, 0, len(word))

		var i int

		for i < len(word) {
			j := slices.Index(word[i:], best[0])
			if j == -1 {
				newWord = append(newWord, word[i:]...)

				break
			}

			j += i

			newWord = append(newWord, word[i:j]...)

			if j < len(word)-1 && word[j+1] == best[1] {
				newWord = append(newWord, best[0]+best[1])

				i = j + 2
			} else {
				newWord = append(newWord, word[j])

				i = j + 1
			}
		}

		word = newWord
	}

	out := strings.Join(word, " ")

	t.cache[token] = out

	return out
}

// bytesToUnicode maps every byte onto a printable rune, the reversible
// byte-level alphabet BPE vocabularies are written in.
func bytesToUnicode() map[byte]rune {
	bs := make([]int, 0, 256)
	cs := make([]int, 0, 256)

	for b := int('!'); b <= int('~'); b++ {
		bs = append(bs, b)
		cs = append(cs, b)
	}

	for b := 0xA1; b <= 0xAC; b++ {
		bs = append(bs, b)
		cs = append(cs, b)
	}

	for b := 0xAE; b <= 0xFF; b++ {
		bs = append(bs, b)
		cs = append(cs, b)
	}

	var n int

	for b := 0; b < 256; b++ {
		if !slices.Contains(bs, b) {
			bs = append(bs, b)
			cs = append(cs, 256+n)

			n++
		}
	}

	m := make(map[byte]rune, 256)

	for i, b := range bs {
		m[byte(b)] = rune(cs[i])
	}

	return m
}

func loadMerges(path string) (map[[2]string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer file.Close()

	ranks := make(map[[2]string]int)

	scanner := bufio.NewScanner(file)

	var rank int

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}

		ranks[[2]string{parts[0], parts[1]}] = rank

		rank++
	}

	err = scanner.Err()
	if err != nil {
		return nil, err
	}

	return ranks, nil
}

// flattenMerges accepts both tokenizer.json shapes, plain "a b" strings and
// ["a", "b"] pairs.
func flattenMerges(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected merges type in tokenizer.json: %T", v)
	}

	out := make([]string, 0, len(list))

	for _, item := range list {
		switch it := item.(type) {
		case string:
			out = append(out, it)
		case []any:
			if len(it) != 2 {
				continue
			}

			a, aok := it[0].(string)
			b, bok := it[1].(string)

			if aok && bok {
				out = append(out, a+" "+b)
			}
		}
	}

	return out, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
