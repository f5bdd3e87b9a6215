package rod

const (
	BasicHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title></head>
<body>
	<h1>Hello World</h1>
	<p>Some body text.</p>
</body>
</html>`

	FormHTML = `<!DOCTYPE html>
<html>
<head><title>Form</title></head>
<body>
	<form id="testForm" onsubmit="event.preventDefault(); document.getElementById('out').textContent = document.getElementById('username').value;">
		<input id="username" type="text" name="username" placeholder="User name" />
		<button id="submit" type="submit">Submit</button>
	</form>
	<div id="out"></div>
</body>
</html>`

	InteractiveHTML = `<!DOCTYPE html>
<html>
<head><title>Interactive</title></head>
<body>
	<button id="btn">Click Me</button>
	<button class="dup">Twin</button>
	<button class="dup">Twin</button>
	<button id="disabled" disabled>Off</button>
	<button id="hidden" style="display:none">Hidden</button>
	<a id="discussion" href="#discussion-section">Discussion</a>
	<div id="result"></div>
	<div id="discussion-section">Comments</div>
	<script>
		document.getElementById('btn').addEventListener('click', function() {
			document.getElementById('result').textContent = 'Clicked!';
		});
	</script>
</body>
</html>`

	ScrollableHTML = `<!DOCTYPE html>
<html>
<body style="height: 5000px;">
	<h1 id="top">Top of Page</h1>
	<div style="margin-top: 2000px;" id="middle">Middle</div>
	<div style="margin-top: 2000px;" id="bottom">Bottom</div>
</body>
</html>`
)
