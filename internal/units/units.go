// Package units holds physical constants in the eV / Angstrom / Kelvin
// system used throughout heox.
package units

// KB is the Boltzmann constant in eV per Kelvin.
const KB = 8.617333262e-5
