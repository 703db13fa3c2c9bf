// Package fabricconfig loads the construction-time configuration a
// fabric.Manager needs from a YAML file, split into a load step and a
// validate step so a bad file fails before anything is wired up.
package fabricconfig
