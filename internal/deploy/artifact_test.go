package deploy

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "ChainDeploy/internal/errors"
)

func TestLoadArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Emitter.json")
	content := `{"contractName":"Emitter","abi":[],"bytecode":"` + simpleContractBin + `","deployedBytecode":"0x00"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	artifact, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if artifact.ContractName != "Emitter" || string(artifact.ABI) != "[]" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}

	req := RequestFromArtifact("development", artifact, nil)
	if req.Contract != "Emitter" || req.Bytecode != simpleContractBin {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestParseArtifactRejectsUndeployableBytecode(t *testing.T) {
	cases := map[string]string{
		"abstract": `{"contractName":"I","abi":[],"bytecode":"0x"}`,
		"unlinked": `{"contractName":"L","abi":[],"bytecode":"0x60__MathLib_______________________________6000"}`,
		"not hex":  `{"contractName":"X","abi":[],"bytecode":"6080"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(content))
			if !xerrors.HasCode(err, CodeJobValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadArtifactMissingFile(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
