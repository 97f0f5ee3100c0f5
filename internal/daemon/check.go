package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/livp123/dxwatch/internal/config"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
)

// CheckConfiguration validates the configuration file at path without
// connecting anywhere.
// CheckConfiguration 验证配置文件，不建立任何连接。
func CheckConfiguration(path string) (*config.ValidationResult, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", dxerr.ErrConfigNotFound, path)
		}
		return nil, err
	}
	return config.ValidateConfig(data)
}
