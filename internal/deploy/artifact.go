package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "ChainDeploy/internal/errors"
)

// Artifact is the subset of a Truffle build artifact needed to deploy.
type Artifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads and validates a Truffle-style artifact file.
func LoadArtifact(path string) (Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("read artifact %s", path))
	}
	return ParseArtifact(content)
}

// ParseArtifact decodes artifact JSON.
func ParseArtifact(content []byte) (Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return Artifact{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode artifact")
	}
	if len(artifact.ABI) == 0 || string(artifact.ABI) == "null" {
		artifact.ABI = json.RawMessage("[]")
	}
	if err := validateBytecode(artifact.Bytecode); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

func validateBytecode(bytecode string) error {
	bytecode = strings.TrimSpace(bytecode)
	if bytecode == "" || bytecode == "0x" {
		return xerrors.New(CodeJobValidation, "bytecode is empty; abstract contracts and interfaces cannot be deployed")
	}
	if strings.Contains(bytecode, "__") {
		return xerrors.New(CodeJobValidation, "bytecode has unlinked library placeholders")
	}
	if _, err := hexutil.Decode(bytecode); err != nil {
		return xerrors.Wrap(CodeJobValidation, err, "bytecode is not 0x-prefixed hex")
	}
	return nil
}
