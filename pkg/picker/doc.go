// Package picker binds the image-from-page field behaviour to a widget
// element inside a dom.Document.
//
// A Controller owns one widget: its selection value, its thumbnail cache and
// the nodes it keeps in sync (the hidden value input, the preview image and
// its caption, and one collapsible group per candidate page). Behaviour is
// attached through delegated listeners, so thumbnails inserted after an
// asynchronous load are clickable without rebinding.
//
// Expected markup (class names are configurable through Selectors):
//
//	<div class="InputfieldImageFromPage">
//	  <input class="imagefrompage_value" value='{"pageid": 5, "filename": "a.jpg"}'>
//	  <div class="uk-panel">
//	    <img src="..." data-src="placeholder.png">
//	    <span>remove</span>
//	    <div class="uk-thumbnail-caption"></div>
//	  </div>
//	  <div class="imagefrompage_thumbholder InputfieldStateCollapsed">
//	    <label class="InputfieldHeader">Page title</label>
//	    <a class="imagefrompage_editimages">edit</a>
//	    <ul class="uk-thumbnav" data-pageid="7"></ul>
//	  </div>
//	</div>
package picker
