// Package hal adapts periph.io pins and buses to the bridge interfaces:
// a pin reservation table, I2C and SPI masters, and a simulated board.
package hal
