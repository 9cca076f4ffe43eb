package vm

import (
	"encoding/binary"
	"errors"
)

// Instruction is one interop call a Transaction's script asks the runtime
// to make: a method name plus its encoded arguments. The opcode-level
// bytecode interpreter a script would otherwise run through is out of
// scope and is not reimplemented here.
type Instruction struct {
	Method string
	Args   [][]byte
}

// EncodeScript is the canonical byte encoding of an instruction sequence,
// consumed by DecodeScript and stored verbatim as Transaction.Script.
func EncodeScript(instructions []Instruction) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(instructions)))
	for _, instr := range instructions {
		out = appendLenPrefixed(out, []byte(instr.Method))
		var argc [4]byte
		binary.BigEndian.PutUint32(argc[:], uint32(len(instr.Args)))
		out = append(out, argc[:]...)
		for _, a := range instr.Args {
			out = appendLenPrefixed(out, a)
		}
	}
	return out
}

func DecodeScript(data []byte) ([]Instruction, error) {
	if len(data) < 4 {
		return nil, errors.New("vm: short script")
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	instructions := make([]Instruction, 0, count)
	for i := uint32(0); i < count; i++ {
		method, rest, err := readLenPrefixed(data)
		if err != nil {
			return nil, err
		}
		data = rest
		if len(data) < 4 {
			return nil, errors.New("vm: truncated script")
		}
		argc := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		args := make([][]byte, 0, argc)
		for j := uint32(0); j < argc; j++ {
			arg, rest, err := readLenPrefixed(data)
			if err != nil {
				return nil, err
			}
			data = rest
			args = append(args, arg)
		}
		instructions = append(instructions, Instruction{Method: string(method), Args: args})
	}
	return instructions, nil
}

func appendLenPrefixed(out []byte, v []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(v)))
	out = append(out, length[:]...)
	return append(out, v...)
}

func readLenPrefixed(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, errors.New("vm: short length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, errors.New("vm: truncated field")
	}
	return data[:n], data[n:], nil
}
