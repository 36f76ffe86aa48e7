package fpga

import "fmt"

func statline(active int, bitmap string) string {
	return fmt.Sprintf(", %d Active Cores: %s", active, bitmap)
}
