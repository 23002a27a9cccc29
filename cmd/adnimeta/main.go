// SPDX-License-Identifier: Apache-2.0

// Command adnimeta extracts scan metadata from ADNI XML archives.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
