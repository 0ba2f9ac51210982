package domain

import (
	"fmt"
	"math"
	"sort"
)

// Kernel is the integrand: a pure function of one variable.
type Kernel func(x float64) float64

// Square is the reference kernel, f(x) = x².
func Square(x float64) float64 {
	return x * x
}

var kernels = map[string]Kernel{
	"square":   Square,
	"identity": func(x float64) float64 { return x },
	"sin":      math.Sin,
	"exp":      math.Exp,
}

// LookupKernel resolves a kernel by its configured name.
func LookupKernel(name string) (Kernel, error) {
	k, ok := kernels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownKernel, name, KernelNames())
	}
	return k, nil
}

// KernelNames lists the registered kernel names in sorted order.
func KernelNames() []string {
	names := make([]string, 0, len(kernels))
	for name := range kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
