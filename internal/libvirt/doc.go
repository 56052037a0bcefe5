// Package libvirt implements the domain control interface on top of
// libvirt, using github.com/digitalocean/go-libvirt over the local socket.
//
// Directory maps hexagon domains onto libvirt domains. Attributes with a
// native libvirt field (vcpus, memory, maxmem, kernel, autostart) are read
// from and written to the persistent domain XML. Everything else, including
// class, label, template, netvm, tags, features and the last start time,
// lives in hexagon metadata (see internal/metadata).
//
// Commands inside a domain run through qemu-guest-agent, which the
// cloud-init seed of every new domain installs.
//
// Consumer-side interfaces keep the adapter testable: libvirtClient is
// satisfied by *libvirt.Libvirt and storageManager by *storage.Manager.
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	dir := libvirt.NewDirectory(client.Libvirt(), logger)
//	dom, err := dir.Lookup(ctx, "work")
package libvirt
