package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wudi/pagekit/scanner"
)

// runTokens dumps the lexical tokens of a file, skipping stream bodies.
// It is a debugging aid for damaged files.
func runTokens(args []string, stdout io.Writer) error {
	c := newCommon("tokens", "<pdf>")
	limit := c.fs.Int("n", 200000, "Stop after this many tokens")
	if err := c.parse(args, 1); err != nil {
		return err
	}
	data, err := os.ReadFile(c.fs.Arg(0))
	if err != nil {
		return err
	}
	s := scanner.New(data, scanner.Config{})
	for i := 0; i < *limit; i++ {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(stdout, "ERR@%d: %v\n", s.Position(), err)
			return nil
		}
		fmt.Fprintf(stdout, "%d %s %s\n", tok.Pos, tok.Type, tokenText(tok))
		if tok.Type == scanner.TokenKeyword && tok.Str == "stream" {
			end := bytes.Index(data[s.Position():], []byte("endstream"))
			if end < 0 {
				return nil
			}
			if err := s.Seek(s.Position() + int64(end)); err != nil {
				return err
			}
		}
	}
	return nil
}

func tokenText(tok scanner.Token) string {
	switch tok.Type {
	case scanner.TokenName:
		return "/" + tok.Str
	case scanner.TokenKeyword:
		return tok.Str
	case scanner.TokenString:
		if tok.Hex {
			return fmt.Sprintf("<%x>", tok.Bytes)
		}
		return strconv.Quote(string(tok.Bytes))
	case scanner.TokenNumber:
		if tok.IsInt {
			return strconv.FormatInt(tok.Int, 10)
		}
		return strconv.FormatFloat(tok.Float, 'g', -1, 64)
	case scanner.TokenBoolean:
		return strconv.FormatBool(tok.Bool)
	}
	return ""
}
