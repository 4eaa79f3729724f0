// Package deployer moves a finished archive to a hosting target one batch
// at a time. The Engine owns the deploy queue and the content cache; the
// target-specific transfer lives behind the Deployer interface, with one
// implementation per subpackage.
package deployer
