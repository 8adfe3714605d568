package textir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/qpuforge/qpuc/compileerror"
	"github.com/qpuforge/qpuc/hwinfo"
	"github.com/qpuforge/qpuc/ir"
)

// Parser turns a token stream into an *ir.Module. It is recursive-descent in
// the same shape as the teacher's parser/parser.go (a token buffer, a
// current-token cursor, one parseX method per grammar production), scaled
// down to this notation's much smaller grammar.
type Parser struct {
	toks []Token
	pos  int

	module  *ir.Module
	method  *ir.Method
	locals  map[string]*ir.Local
}

// Parse lexes and parses src into a Module. It implements compile.FrontEnd.
func Parse(blob []byte) (*ir.Module, error) {
	lx := NewLexer(string(blob))
	var toks []Token
	for {
		t, err := lx.Next()
		if err != nil {
			return nil, compileerror.Newf(compileerror.StepScanner, "%v", err)
		}
		toks = append(toks, t)
		if t.Type == TokenEOF {
			break
		}
	}
	p := &Parser{toks: toks, module: ir.NewModule()}
	if err := p.parseProgram(); err != nil {
		return nil, err
	}
	return p.module, nil
}

func (p *Parser) cur() Token  { return p.toks[p.pos] }
func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) skipNewlines() {
	for p.cur().Type == TokenNewline {
		p.advance()
	}
}

func (p *Parser) errf(format string, args ...any) error {
	return compileerror.Newf(compileerror.StepParser, "line %d: %s", p.cur().Line, fmt.Sprintf(format, args...))
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	if p.cur().Type != tt {
		return Token{}, p.errf("expected %s, got %s %q", tt, p.cur().Type, p.cur().Text)
	}
	return p.advance(), nil
}

func (p *Parser) expectIdent(word string) error {
	if p.cur().Type != TokenIdent || p.cur().Text != word {
		return p.errf("expected %q, got %q", word, p.cur().Text)
	}
	p.advance()
	return nil
}

func (p *Parser) parseProgram() error {
	p.skipNewlines()
	for p.cur().Type != TokenEOF {
		switch {
		case p.cur().Type == TokenIdent && p.cur().Text == "global":
			if err := p.parseGlobal(); err != nil {
				return err
			}
		case p.cur().Type == TokenIdent && (p.cur().Text == "kernel" || p.cur().Text == "method"):
			if err := p.parseMethod(); err != nil {
				return err
			}
		default:
			return p.errf("expected %q, %q or %q, got %q", "global", "kernel", "method", p.cur().Text)
		}
		p.skipNewlines()
	}
	return nil
}

// parseGlobal: global TYPE @name = LITERAL
func (p *Parser) parseGlobal() error {
	p.advance() // "global"
	typ, err := p.parseType()
	if err != nil {
		return err
	}
	name, err := p.expect(TokenGlobal)
	if err != nil {
		return err
	}
	if _, err := p.expect(TokenEquals); err != nil {
		return err
	}
	lit, err := p.parseLiteralValue(typ)
	if err != nil {
		return err
	}
	p.module.AddGlobal(name.Text, typ, typ.PhysicalWidth(), lit)
	return nil
}

// parseMethod: ("kernel"|"method") name "(" params ")" [workgroup clause] "{" stmts "}"
func (p *Parser) parseMethod() error {
	isKernel := p.cur().Text == "kernel"
	p.advance()
	nameTok, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	p.method = p.module.AddMethod(nameTok.Text)
	p.method.IsKernel = isKernel
	p.locals = map[string]*ir.Local{}

	if _, err := p.expect(TokenLParen); err != nil {
		return err
	}
	if p.cur().Type != TokenRParen {
		for {
			if err := p.parseParam(); err != nil {
				return err
			}
			if p.cur().Type == TokenComma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return err
	}

	for p.cur().Type == TokenIdent && (p.cur().Text == "reqwg" || p.cur().Text == "hintwg") {
		if err := p.parseWorkGroupClause(); err != nil {
			return err
		}
	}

	p.skipNewlines()
	if _, err := p.expect(TokenLBrace); err != nil {
		return err
	}
	p.skipNewlines()
	for p.cur().Type != TokenRBrace {
		if err := p.parseStatement(); err != nil {
			return err
		}
		p.skipNewlines()
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return err
	}
	return nil
}

func (p *Parser) parseWorkGroupClause() error {
	required := p.cur().Text == "reqwg"
	p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return err
	}
	dims := make([]uint32, 3)
	for i := 0; i < 3; i++ {
		if i > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return err
			}
		}
		n, err := p.expect(TokenNumber)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(n.Text, 10, 32)
		if err != nil {
			return p.errf("invalid work-group dimension %q", n.Text)
		}
		dims[i] = uint32(v)
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return err
	}
	wgs := ir.WorkGroupSize{X: dims[0], Y: dims[1], Z: dims[2], Known: true}
	if required {
		p.method.RequiredWorkGroupSize = wgs
	} else {
		p.method.WorkGroupSizeHint = wgs
	}
	return nil
}

// parseParam: TYPE [ "(" decorator {"," decorator} ")" ] name
func (p *Parser) parseParam() error {
	typ, err := p.parseType()
	if err != nil {
		return err
	}
	var decor ir.ParamDecoration
	if p.cur().Type == TokenLParen {
		p.advance()
		for {
			tok, err := p.expect(TokenIdent)
			if err != nil {
				return err
			}
			d, ok := decoratorByName[tok.Text]
			if !ok {
				return p.errf("unknown parameter decorator %q", tok.Text)
			}
			decor |= d
			if p.cur().Type == TokenComma {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return err
		}
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	local := p.method.AddParameter(name.Text, typ, decor)
	p.locals[name.Text] = local
	return nil
}

var decoratorByName = map[string]ir.ParamDecoration{
	"readonly":  ir.ParamReadOnly,
	"writeonly": ir.ParamWriteOnly,
	"restrict":  ir.ParamRestrict,
	"volatile":  ir.ParamVolatile,
	"signext":   ir.ParamSignExtend,
	"zeroext":   ir.ParamZeroExtend,
}

// parseType: BASE [ "*" SPACE ]
func (p *Parser) parseType() (ir.DataType, error) {
	base, err := p.expect(TokenIdent)
	if err != nil {
		return ir.DataType{}, err
	}
	scalar, ok := scalarTypeByName[base.Text]
	if !ok {
		return ir.DataType{}, p.errf("unknown type %q", base.Text)
	}
	if p.cur().Type != TokenStar {
		return scalar, nil
	}
	p.advance()
	spaceTok, err := p.expect(TokenIdent)
	if err != nil {
		return ir.DataType{}, err
	}
	space, ok := addressSpaceByName[spaceTok.Text]
	if !ok {
		return ir.DataType{}, p.errf("unknown address space %q", spaceTok.Text)
	}
	return ir.Pointer(scalar, space, scalar.PhysicalWidth()), nil
}

var scalarTypeByName = map[string]ir.DataType{
	"i8":   ir.Int8,
	"i16":  ir.Scalar(16, false, true),
	"i32":  ir.Int32,
	"i64":  ir.Scalar(64, false, true),
	"u8":   ir.UInt8,
	"u16":  ir.Scalar(16, false, false),
	"u32":  ir.UInt32,
	"u64":  ir.Scalar(64, false, false),
	"f32":  ir.Float32,
	"bool": ir.Scalar(1, false, false),
}

var addressSpaceByName = map[string]ir.AddressSpace{
	"private":  ir.AddressPrivate,
	"local":    ir.AddressLocal,
	"global":   ir.AddressGlobal,
	"constant": ir.AddressConstant,
	"generic":  ir.AddressGeneric,
}

// parseStatement dispatches one line of kernel body.
func (p *Parser) parseStatement() error {
	w := p.method.Entry().Walker()
	for w.NextInBlock() {
	}

	switch {
	case p.cur().Type == TokenIdent && p.peekAhead(1).Type == TokenColon:
		label := p.advance()
		p.advance() // colon
		w.Emplace(ir.NewBranchLabel(label.Text))
		return nil

	case p.cur().Type == TokenIdent && p.cur().Text == "ret":
		p.advance()
		w.Emplace(ir.NewReturn())
		return nil

	case p.cur().Type == TokenIdent && p.cur().Text == "nop":
		p.advance()
		reasonTok, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		// The lexer splits "wait-register" into ident, "-" and ident; join
		// hyphenated reasons back together before the lookup.
		reasonText := reasonTok.Text
		for p.cur().Type == TokenNumber && p.cur().Text == "-" && p.peekAhead(1).Type == TokenIdent {
			p.advance()
			reasonText += "-" + p.advance().Text
		}
		reason, ok := nopReasonByName[reasonText]
		if !ok {
			return p.errf("unknown nop reason %q", reasonText)
		}
		w.Emplace(ir.NewNop(reason))
		return nil

	case p.cur().Type == TokenIdent && p.cur().Text == "mutex":
		p.advance()
		if _, err := p.expect(TokenDot); err != nil {
			return err
		}
		verb, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		switch verb.Text {
		case "acquire":
			w.Emplace(ir.NewMutexLock(true))
		case "release":
			w.Emplace(ir.NewMutexLock(false))
		default:
			return p.errf("unknown mutex operation %q", verb.Text)
		}
		return nil

	case p.cur().Type == TokenIdent && p.cur().Text == "sem":
		p.advance()
		if _, err := p.expect(TokenDot); err != nil {
			return err
		}
		verb, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		id, err := p.parseArg()
		if err != nil {
			return err
		}
		switch verb.Text {
		case "inc":
			w.Emplace(ir.NewSemaphoreAdjustment(id, true))
		case "dec":
			w.Emplace(ir.NewSemaphoreAdjustment(id, false))
		default:
			return p.errf("unknown semaphore operation %q", verb.Text)
		}
		return nil

	case p.cur().Type == TokenIdent && p.cur().Text == "br":
		p.advance()
		cond := hwinfo.CondAlways
		if p.cur().Type == TokenDot {
			p.advance()
			c, err := p.parseCondName()
			if err != nil {
				return err
			}
			cond = c
		}
		label, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		w.Emplace(ir.NewBranch(label.Text, cond))
		return nil

	case p.cur().Type == TokenLocal:
		return p.parseAssignment(w)

	default:
		return p.errf("unexpected token %q at start of statement", p.cur().Text)
	}
}

func (p *Parser) peekAhead(n int) Token {
	idx := p.pos + n
	if idx >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[idx]
}

var nopReasonByName = map[string]hwinfo.NopReason{
	"wait-register": hwinfo.NopWaitRegister,
	"wait-sfu":      hwinfo.NopWaitSFU,
	"dma-fence":     hwinfo.NopDMAFence,
	"generic":       hwinfo.NopGeneric,
}

var condByName = map[string]hwinfo.Condition{
	"zs": hwinfo.CondZeroSet,
	"zc": hwinfo.CondZeroClear,
	"ns": hwinfo.CondNegativeSet,
	"nc": hwinfo.CondNegativeClear,
	"cs": hwinfo.CondCarrySet,
	"cc": hwinfo.CondCarryClear,
}

func (p *Parser) parseCondName() (hwinfo.Condition, error) {
	tok, err := p.expect(TokenIdent)
	if err != nil {
		return hwinfo.CondAlways, err
	}
	c, ok := condByName[tok.Text]
	if !ok {
		return hwinfo.CondAlways, p.errf("unknown condition suffix %q", tok.Text)
	}
	return c, nil
}

// parseAssignment: %name ":" TYPE "=" MNEMONIC [ "." COND ] args
func (p *Parser) parseAssignment(w *ir.InstructionWalker) error {
	nameTok := p.advance() // TokenLocal already matched by caller

	var typ ir.DataType
	if p.cur().Type == TokenColon {
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return err
		}
		typ = t
	} else if existing, ok := p.locals[nameTok.Text]; ok {
		typ = existing.Type
	} else {
		return p.errf("local %%%s used before its type was declared", nameTok.Text)
	}

	out := p.localFor(nameTok.Text, typ)

	if _, err := p.expect(TokenEquals); err != nil {
		return err
	}

	mnemonicTok, err := p.expect(TokenIdent)
	if err != nil {
		return err
	}
	mnemonic := mnemonicTok.Text

	cond := hwinfo.CondAlways
	if p.cur().Type == TokenDot {
		p.advance()
		c, err := p.parseCondName()
		if err != nil {
			return err
		}
		cond = c
	}

	switch mnemonic {
	case "mov":
		args, err := p.parseArgs(1)
		if err != nil {
			return err
		}
		ins := ir.NewMove(out, args[0])
		ins.Cond = cond
		w.Emplace(ins)
		return nil

	case "ldi":
		lit, err := p.parseLiteralValue(typ)
		if err != nil {
			return err
		}
		ins := ir.NewLoadImmediate(out, lit)
		ins.Cond = cond
		w.Emplace(ins)
		return nil

	case "rotate":
		args, err := p.parseArgs(2)
		if err != nil {
			return err
		}
		ins := ir.NewVectorRotation(out, args[0], args[1])
		ins.Cond = cond
		w.Emplace(ins)
		return nil

	case "call":
		callee, err := p.expect(TokenIdent)
		if err != nil {
			return err
		}
		args, err := p.parseArgs(-1)
		if err != nil {
			return err
		}
		ins := ir.NewMethodCall(out, callee.Text, args...)
		ins.Cond = cond
		w.Emplace(ins)
		return nil
	}

	if info, side, op, ok := lookupALUOp(mnemonic); ok {
		args, err := p.parseArgs(info.Operands)
		if err != nil {
			return err
		}
		var ins *ir.Instruction
		if side == hwinfo.SideAdd {
			ins = ir.NewAddOperation(out, op.(hwinfo.AddOp), args...)
		} else {
			ins = ir.NewMulOperation(out, op.(hwinfo.MulOp), args...)
		}
		ins.Cond = cond
		w.Emplace(ins)
		return nil
	}

	// Anything unrecognized is dispatched as an abstract call, exactly as
	// the generic-arithmetic legalization pass expects unresolved mnemonics
	// like "sdiv"/"udiv"/"fdiv" to arrive (spec.md §4.C).
	args, err := p.parseArgs(-1)
	if err != nil {
		return err
	}
	ins := ir.NewMethodCall(out, mnemonic, args...)
	ins.Cond = cond
	w.Emplace(ins)
	return nil
}

func lookupALUOp(name string) (info struct {
	Operands int
}, side hwinfo.ALUSide, op any, ok bool) {
	for i, e := range hwinfo.AddOpTable {
		if e.Name == name {
			return struct{ Operands int }{e.Operands}, hwinfo.SideAdd, hwinfo.AddOp(i), true
		}
	}
	for i, e := range hwinfo.MulOpTable {
		if e.Name == name && hwinfo.MulOp(i) != hwinfo.MulMove {
			return struct{ Operands int }{e.Operands}, hwinfo.SideMul, hwinfo.MulOp(i), true
		}
	}
	return struct{ Operands int }{}, 0, nil, false
}

func (p *Parser) localFor(name string, typ ir.DataType) *ir.Local {
	if l, ok := p.locals[name]; ok {
		return l
	}
	l := p.method.AddNewLocal(typ, name)
	p.locals[name] = l
	return l
}

// parseArgs reads a comma-separated argument list until end of line. want < 0
// means "any number"; otherwise it is enforced exactly.
func (p *Parser) parseArgs(want int) ([]ir.Value, error) {
	var args []ir.Value
	for p.cur().Type != TokenNewline && p.cur().Type != TokenEOF && p.cur().Type != TokenRBrace {
		v, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if want >= 0 && len(args) != want {
		return nil, p.errf("expected %d operand(s), got %d", want, len(args))
	}
	return args, nil
}

func (p *Parser) parseArg() (ir.Value, error) {
	switch p.cur().Type {
	case TokenLocal:
		tok := p.advance()
		l, ok := p.locals[tok.Text]
		if !ok {
			return ir.Value{}, p.errf("reference to undeclared local %%%s", tok.Text)
		}
		return ir.LocalValue(l), nil

	case TokenNumber:
		return p.parseLiteralValue(ir.Int32)

	case TokenIdent:
		tok := p.advance()
		switch tok.Text {
		case "true":
			return ir.LiteralValue(scalarTypeByName["bool"], ir.BoolLiteral(true)), nil
		case "false":
			return ir.LiteralValue(scalarTypeByName["bool"], ir.BoolLiteral(false)), nil
		default:
			return ir.Value{}, p.errf("unexpected identifier %q in argument position", tok.Text)
		}
	}
	return ir.Value{}, p.errf("unexpected token %q in argument position", p.cur().Text)
}

// parseLiteralValue consumes a TokenNumber already positioned at p.cur() and
// builds a Value of type typ from it.
func (p *Parser) parseLiteralValue(typ ir.DataType) (ir.Value, error) {
	tok, err := p.expect(TokenNumber)
	if err != nil {
		return ir.Value{}, err
	}
	if typ.IsFloat || strings.Contains(tok.Text, ".") {
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return ir.Value{}, p.errf("invalid float literal %q", tok.Text)
		}
		return ir.LiteralValue(typ, ir.FloatLiteral(f)), nil
	}
	if typ.Signed {
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return ir.Value{}, p.errf("invalid integer literal %q", tok.Text)
		}
		return ir.LiteralValue(typ, ir.IntLiteral(n)), nil
	}
	n, err := strconv.ParseUint(tok.Text, 10, 64)
	if err != nil {
		return ir.Value{}, p.errf("invalid integer literal %q", tok.Text)
	}
	return ir.LiteralValue(typ, ir.UintLiteral(n)), nil
}
