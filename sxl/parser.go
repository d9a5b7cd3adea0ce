package sxl

// parser walks the token stream produced by the lexer.
type parser struct {
	toks []Token
	pos  int
}

// Parse tokenizes and parses src into a sequence of top-level nodes. Commas
// between sibling nodes are permitted and ignored. An empty or comment-only
// input yields an empty slice.
func Parse(src string) ([]Node, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var nodes []Node
	for {
		switch tok := p.peek(); tok.Kind {
		case TokenEOF:
			return nodes, nil
		case TokenComma:
			p.advance()
		case TokenRParen:
			return nil, parseErrorf(CodeUnexpectedRParen, tok.Pos, "unexpected %q", ")")
		default:
			node, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
	}
}

// ParseOne parses src and requires exactly one top-level node.
func ParseOne(src string) (Node, error) {
	nodes, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, parseErrorf(CodeEmptyExpression, Pos{Line: 1, Column: 1}, "empty expression")
	}
	if len(nodes) > 1 {
		return nil, parseErrorf(CodeExpectedSymbol, nodes[1].Pos(), "expected a single expression, found %d", len(nodes))
	}
	return nodes[0], nil
}

// parseNode parses a single node at the cursor.
func (p *parser) parseNode() (Node, error) {
	switch tok := p.peek(); tok.Kind {
	case TokenLParen:
		return p.parseCall()
	case TokenIdent:
		p.advance()
		return NewSymbol(tok.Text, tok.Pos), nil
	case TokenString:
		p.advance()
		return NewLiteral(tok.Text, LiteralString, tok.Pos), nil
	case TokenNumber:
		p.advance()
		return NewLiteral(tok.Text, LiteralNumber, tok.Pos), nil
	case TokenRParen:
		return nil, parseErrorf(CodeUnexpectedRParen, tok.Pos, "unexpected %q", ")")
	case TokenEOF:
		return nil, parseErrorf(CodeEmptyExpression, tok.Pos, "empty expression")
	default:
		return nil, parseErrorf(CodeInvalidToken, tok.Pos, "unexpected token %s", tok)
	}
}

// parseCall parses an open paren, a symbol head, zero or more argument nodes
// and the closing paren.
func (p *parser) parseCall() (Node, error) {
	open := p.peek()
	p.advance()

	head := p.peek()
	switch head.Kind {
	case TokenRParen:
		return nil, parseErrorf(CodeEmptyExpression, open.Pos, "empty expression %q", "()")
	case TokenEOF:
		return nil, parseErrorf(CodeUnmatchedParen, open.Pos, "unmatched %q", "(")
	case TokenIdent:
		p.advance()
	default:
		return nil, parseErrorf(CodeExpectedSymbol, head.Pos, "expected symbol after %q, found %s", "(", head)
	}

	var args []Node
	for {
		switch tok := p.peek(); tok.Kind {
		case TokenRParen:
			p.advance()
			return NewSymbol(head.Text, head.Pos, args...), nil
		case TokenEOF:
			return nil, parseErrorf(CodeUnmatchedParen, open.Pos, "unmatched %q", "(")
		case TokenComma:
			p.advance()
		default:
			arg, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
	}
}

func (p *parser) peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Kind: TokenEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) advance() {
	if p.pos < len(p.toks) {
		p.pos++
	}
}
