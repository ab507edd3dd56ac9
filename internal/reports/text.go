package reports

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// corpusVectors builds smoothed, L2-normalized TF-IDF vectors over the
// documents. The vocabulary is sorted so vector dimensions are stable.
func corpusVectors(docs []string) (terms []string, vectors [][]float64) {
	df := make(map[string]int)
	tokenized := make([][]string, len(docs))
	for i, text := range docs {
		tokens := tokenize(text)
		tokenized[i] = tokens
		seen := make(map[string]struct{})
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms = make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	index := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	n := float64(len(docs))
	for i, term := range terms {
		index[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	vectors = make([][]float64, len(docs))
	for i, tokens := range tokenized {
		vec := make([]float64, len(terms))
		for _, tok := range tokens {
			vec[index[tok]]++
		}
		if len(tokens) > 0 {
			for j := range vec {
				vec[j] = vec[j] / float64(len(tokens)) * idf[j]
			}
		}
		norm := 0.0
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range vec {
				vec[j] /= norm
			}
		}
		vectors[i] = vec
	}
	return terms, vectors
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again",
		"further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out",
		"off", "own", "same", "too", "very", "can", "will", "just",
		"should", "now", "he", "she", "they", "we", "you", "i", "not",
		"no", "do", "does", "did", "have", "has", "had", "there", "here",
		"what", "which", "who", "whom", "its", "his", "her", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
